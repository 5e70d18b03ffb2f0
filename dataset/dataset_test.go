package dataset

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

const sampleCSV = `customerID,gender,tenure,Contract,InternetService,PaymentMethod,MonthlyCharges,TotalCharges,Churn
7590-VHVEG,Female,1,Month-to-month,DSL,Electronic check,29.85,29.85,No
5575-GNVDE,Male,34,One year,DSL,Mailed check,56.95,1889.5,No
3668-QPYBK,Male,2,Month-to-month,DSL,Mailed check,53.85,108.15,Yes
7795-CFOCW,Male,45,One year,DSL,Bank transfer (automatic),42.30,1840.75,No
9237-HQITU,Female,2,Month-to-month,Fiber optic,Electronic check,70.70,151.65,Yes
9305-CDSKC,Female,8,Month-to-month,Fiber optic,Electronic check,99.65,,Yes
`

type countingSource struct {
	calls atomic.Int32
	err   error
}

func (s *countingSource) Query(_ context.Context, limit int) ([]string, [][]string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, nil, s.err
	}
	return ReadCSV(strings.NewReader(sampleCSV), limit)
}

func sampleTable(t *testing.T) Table {
	t.Helper()
	cols, rows, err := ReadCSV(strings.NewReader(sampleCSV), 0)
	require.NoError(t, err)
	return Table{Columns: cols, Rows: rows}
}

func TestServiceCachesReads(t *testing.T) {
	src := &countingSource{}
	svc := NewService(src, 3, 4, time.Minute, zap.NewNop())
	ctx := context.Background()

	first, err := svc.Preview(ctx)
	require.NoError(t, err)
	assert.Len(t, first.Rows, 3)

	_, err = svc.Preview(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all.Rows, 6)
	assert.Equal(t, int32(2), src.calls.Load())

	svc.Invalidate()
	_, err = svc.Preview(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestServiceExpires(t *testing.T) {
	src := &countingSource{}
	svc := NewService(src, 3, 4, 20*time.Millisecond, zap.NewNop())

	_, err := svc.Preview(context.Background())
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = svc.Preview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestServiceDoesNotCacheErrors(t *testing.T) {
	src := &countingSource{err: errors.New("connection refused")}
	svc := NewService(src, 3, 4, time.Minute, zap.NewNop())

	_, err := svc.Preview(context.Background())
	assert.Error(t, err)
	_, err = svc.Preview(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestCSVSource(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/telco.csv" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(sampleCSV))
	}))
	defer ts.Close()

	src := &CSVSource{URL: ts.URL + "/telco.csv"}
	cols, rows, err := src.Query(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "customerID", cols[0])
	assert.Len(t, rows, 2)

	_, _, err = (&CSVSource{URL: ts.URL + "/missing.csv"}).Query(context.Background(), 0)
	assert.Error(t, err)
}

func TestTableSelect(t *testing.T) {
	tbl := sampleTable(t)

	same, err := tbl.Select([]string{AllColumns, "tenure"})
	require.NoError(t, err)
	assert.Equal(t, tbl.Columns, same.Columns)

	sel, err := tbl.Select([]string{"Churn", "tenure"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Churn", "tenure"}, sel.Columns)
	assert.Equal(t, []string{"No", "1"}, sel.Rows[0])

	_, err = tbl.Select([]string{"Tenure"})
	assert.Error(t, err)

	assert.Len(t, tbl.Head(2).Rows, 2)
	assert.Len(t, tbl.Head(100).Rows, 6)
}

func TestTableStructure(t *testing.T) {
	info := sampleTable(t).Structure()
	byName := make(map[string]ColumnInfo)
	for _, c := range info {
		byName[c.Name] = c
	}

	assert.Equal(t, KindText, byName["customerID"].Kind)
	assert.Equal(t, KindNumber, byName["tenure"].Kind)
	assert.Equal(t, KindBoolean, byName["Churn"].Kind)
	assert.Equal(t, 5, byName["TotalCharges"].NonEmpty)
	assert.Equal(t, 2, byName["Contract"].Distinct)
}

func TestSummarize(t *testing.T) {
	s, err := Summarize(sampleTable(t))
	require.NoError(t, err)

	assert.Equal(t, 6, s.KPIs.Customers)
	assert.Equal(t, 3, s.KPIs.Churned)
	assert.InDelta(t, 0.5, s.KPIs.ChurnRate, 1e-12)
	assert.InDelta(t, 92.0/6, s.KPIs.AvgTenure, 1e-9)
	assert.InDelta(t, 4019.9, s.KPIs.TotalRevenue, 1e-9)

	require.Len(t, s.ChurnByContract, 2)
	assert.Equal(t, Bucket{Label: "Month-to-month", Total: 4, Churned: 3, Rate: 0.75}, s.ChurnByContract[0])
	assert.Equal(t, "One year", s.ChurnByContract[1].Label)

	require.Len(t, s.TenureGroups, 5)
	assert.Equal(t, 4, s.TenureGroups[0].Total)
	assert.Equal(t, 0, s.TenureGroups[1].Total)
	assert.Equal(t, 2, s.TenureGroups[2].Total)

	assert.Len(t, s.PaymentMethods, 3)
	assert.Len(t, s.ChurnByInternet, 2)

	_, err = Summarize(Table{Columns: []string{"tenure"}})
	assert.Error(t, err)
}

func TestKPIStats(t *testing.T) {
	stats := KPIs{Customers: 7043, ChurnRate: 0.26537, AvgTenure: 32.37, AvgMonthlyCharges: 64.76, TotalRevenue: 16056168.7}.Stats(language.English)
	require.Len(t, stats, 5)
	assert.Equal(t, "7,043", stats[0].Value)
	assert.Equal(t, "26.5%", stats[1].Value)
	assert.Equal(t, "$16,056,168.70", stats[4].Value)
}

func TestDescriptionsCoverModelInputs(t *testing.T) {
	d := Descriptions()
	assert.Equal(t, "tenure", d[0].Name)
	for _, f := range d {
		assert.NotEmpty(t, f.Description, f.Name)
	}
}
