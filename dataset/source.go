package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
)

// Source yields the raw dataset. limit <= 0 means every row.
type Source interface {
	Query(ctx context.Context, limit int) ([]string, [][]string, error)
}

// CSVSource reads the dataset from a CSV file served over HTTP.
type CSVSource struct {
	URL    string
	Client *http.Client
}

func (s *CSVSource) Query(ctx context.Context, limit int) ([]string, [][]string, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch dataset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("fetch dataset: unexpected status %s", resp.Status)
	}
	return ReadCSV(resp.Body, limit)
}

// ReadCSV parses a header row followed by up to limit records.
func ReadCSV(r io.Reader, limit int) ([]string, [][]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}

	var rows [][]string
	for limit <= 0 || len(rows) < limit {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}
