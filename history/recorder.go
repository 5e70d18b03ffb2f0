// Package history keeps the append-only log of predictions as a CSV file.
package history

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"churnboard/customer"
)

// TimeLayout is the minute-precision timestamp written to day_of_prediction.
const TimeLayout = "2006-01-02 15:04"

const (
	ColumnPredictedAt = "day_of_prediction"
	ColumnModel       = "ModelUsed"
	ColumnPrediction  = "Prediction"
)

// Header returns the CSV header: the customer columns followed by the
// prediction columns.
func Header() []string {
	return append(customer.Columns(), ColumnPredictedAt, ColumnModel, ColumnPrediction)
}

// Entry is one logged prediction.
type Entry struct {
	Record      customer.Record `json:"record"`
	PredictedAt time.Time       `json:"day_of_prediction"`
	Model       string          `json:"model_used"`
	Prediction  string          `json:"prediction"`
}

// Strings renders the entry as a CSV row matching Header.
func (e Entry) Strings() []string {
	return append(e.Record.Strings(), e.PredictedAt.Format(TimeLayout), e.Model, e.Prediction)
}

// PersistenceError reports a history file that could not be read or written.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Publisher receives every entry after it is durably appended.
type Publisher interface {
	Publish(e Entry)
}

// Recorder serializes appends so concurrent predictions never interleave
// partial rows.
type Recorder struct {
	path      string
	logger    *zap.Logger
	publisher Publisher

	mu sync.Mutex
}

func NewRecorder(path string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{path: path, logger: logger}
}

func (r *Recorder) SetPublisher(p Publisher) {
	r.publisher = p
}

func (r *Recorder) Path() string { return r.path }

// Append writes one row, creating the file with a header first if needed.
// An existing file with a different header is left untouched.
func (r *Recorder) Append(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return &PersistenceError{Path: r.path, Op: "append", Err: err}
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &PersistenceError{Path: r.path, Op: "append", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &PersistenceError{Path: r.path, Op: "append", Err: err}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		w.Write(Header())
	} else {
		if err := r.checkHeader(); err != nil {
			return err
		}
		// a row cut short by a crash is closed off so the new row starts clean
		terminated, err := r.endsWithNewline(info.Size())
		if err != nil {
			return err
		}
		if !terminated {
			buf.WriteByte('\n')
		}
	}
	w.Write(e.Strings())
	w.Flush()
	if err := w.Error(); err != nil {
		return &PersistenceError{Path: r.path, Op: "append", Err: err}
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return &PersistenceError{Path: r.path, Op: "append", Err: err}
	}
	if err := f.Sync(); err != nil {
		return &PersistenceError{Path: r.path, Op: "append", Err: err}
	}

	if r.publisher != nil {
		r.publisher.Publish(e)
	}
	return nil
}

func (r *Recorder) endsWithNewline(size int64) (bool, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return false, &PersistenceError{Path: r.path, Op: "append", Err: err}
	}
	defer f.Close()

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return false, &PersistenceError{Path: r.path, Op: "append", Err: err}
	}
	return last[0] == '\n', nil
}

func (r *Recorder) checkHeader() error {
	f, err := os.Open(r.path)
	if err != nil {
		return &PersistenceError{Path: r.path, Op: "append", Err: err}
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return &PersistenceError{Path: r.path, Op: "append", Err: fmt.Errorf("read header: %w", err)}
	}
	if !slices.Equal(header, Header()) {
		return &PersistenceError{Path: r.path, Op: "append", Err: errors.New("existing file has a different header")}
	}
	return nil
}

// List returns every logged entry, oldest first. A missing file yields no
// entries and no error.
func (r *Recorder) List() ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Path: r.path, Op: "read", Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Path: r.path, Op: "read", Err: err}
	}
	if !slices.Equal(header, Header()) {
		return nil, &PersistenceError{Path: r.path, Op: "read", Err: errors.New("unexpected header")}
	}

	var entries []Entry
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			r.logger.Warn("skipping unreadable history row", zap.Int("line", line), zap.Error(err))
			continue
		}
		entry, err := parseRow(header, row)
		if err != nil {
			r.logger.Warn("skipping invalid history row", zap.Int("line", line), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseRow(header, row []string) (Entry, error) {
	values := make(map[string]any, len(header))
	for i, name := range header {
		values[name] = row[i]
	}
	rec, err := customer.FromMap(values)
	if err != nil {
		return Entry{}, err
	}
	at, err := time.ParseInLocation(TimeLayout, row[len(row)-3], time.Local)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Record:      rec,
		PredictedAt: at,
		Model:       row[len(row)-2],
		Prediction:  row[len(row)-1],
	}, nil
}
