package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"churnboard/customer"
)

func sampleEntry(model, label string) Entry {
	return Entry{
		Record: customer.Record{
			Tenure: 1, MonthlyCharges: 70.35, TotalCharges: 70.35,
			SeniorCitizen: "No", Partner: "No", Dependents: "No",
			InternetService: "Fiber optic", MultipleLines: "No",
			OnlineSecurity: "No", OnlineBackup: "No", DeviceProtection: "No",
			TechSupport: "No", StreamingTV: "No", StreamingMovies: "No",
			Contract: "Month-to-month", PaperlessBilling: "Yes", PaymentMethod: "Electronic check",
		},
		PredictedAt: time.Date(2024, 3, 9, 14, 27, 0, 0, time.Local),
		Model:       model,
		Prediction:  label,
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

type capturePublisher struct {
	entries []Entry
}

func (c *capturePublisher) Publish(e Entry) { c.entries = append(c.entries, e) }

func TestAppendCreatesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "history.csv")
	rec := NewRecorder(path, zap.NewNop())
	pub := &capturePublisher{}
	rec.SetPublisher(pub)

	require.NoError(t, rec.Append(sampleEntry("Random Forest", "Yes")))
	require.NoError(t, rec.Append(sampleEntry("XGBoost Classifier", "No")))

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, Header(), rows[0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "2024-03-09 14:27", rows[1][17])
	assert.Equal(t, "Random Forest", rows[1][18])
	assert.Equal(t, "Yes", rows[1][19])
	assert.Equal(t, "No", rows[2][19])
	assert.Len(t, pub.entries, 2)
}

func TestListRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	rec := NewRecorder(path, zap.NewNop())

	entries, err := rec.List()
	require.NoError(t, err)
	assert.Empty(t, entries)

	want := sampleEntry("Random Forest", "Yes")
	require.NoError(t, rec.Append(want))

	entries, err = rec.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, want.Record, entries[0].Record)
	assert.True(t, want.PredictedAt.Equal(entries[0].PredictedAt))
	assert.Equal(t, want.Model, entries[0].Model)
}

func TestAppendRefusesForeignHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b,c\n1,2,3\n"), 0o644))

	err := NewRecorder(path, zap.NewNop()).Append(sampleEntry("Random Forest", "Yes"))
	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b,c\n1,2,3\n", string(data))
}

func TestAppendUnwritable(t *testing.T) {
	dir := t.TempDir()
	// A directory in place of the file cannot be opened for append.
	path := filepath.Join(dir, "history.csv")
	require.NoError(t, os.Mkdir(path, 0o755))

	err := NewRecorder(path, zap.NewNop()).Append(sampleEntry("Random Forest", "Yes"))
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "append", pe.Op)
}

func TestConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	rec := NewRecorder(path, zap.NewNop())

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, rec.Append(sampleEntry(fmt.Sprintf("model-%d", i), "No")))
		}(i)
	}
	wg.Wait()

	rows := readRows(t, path)
	require.Len(t, rows, n+1)
	for _, row := range rows[1:] {
		assert.Len(t, row, len(Header()))
	}
}

func TestListSkipsInvalidRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	rec := NewRecorder(path, zap.NewNop())
	require.NoError(t, rec.Append(sampleEntry("Random Forest", "Yes")))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	bad := sampleEntry("Random Forest", "No").Strings()
	bad[14] = "Three year"
	w := csv.NewWriter(f)
	require.NoError(t, w.Write(bad))
	w.Flush()
	require.NoError(t, f.Close())

	entries, err := rec.List()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAppendAfterTruncatedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	rec := NewRecorder(path, zap.NewNop())
	require.NoError(t, rec.Append(sampleEntry("Random Forest", "Yes")))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("1,70.35,70.3")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, rec.Append(sampleEntry("XGBoost Classifier", "No")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1,70.35,70.3\n1,70.35,70.35,")

	entries, err := rec.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "XGBoost Classifier", entries[1].Model)
	assert.Equal(t, "No", entries[1].Prediction)
}
