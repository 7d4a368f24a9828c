package postgres

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

type stagingBatch struct {
	rows [][]any
	idx  int
}

func (s *stagingBatch) Next() bool {
	return s.idx < len(s.rows)
}

func (s *stagingBatch) Err() error {
	return nil
}

func (s *stagingBatch) Values() ([]any, error) {
	row := s.rows[s.idx]
	s.idx++
	return row, nil
}

// readHeader consumes the CSV header row and returns the destination column names.
// BigQuery exports column names in their original casing, Postgres columns are lowercase.
func readHeader(reader *csv.Reader) ([]string, error) {
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("staged file is empty")
		}

		return nil, fmt.Errorf("failed to read the header row: %w", err)
	}

	columns := make([]string, len(header))
	for idx, col := range header {
		columns[idx] = strings.ToLower(col)
	}

	return columns, nil
}

// nextBatch reads up to [batchSize] rows. Empty strings become NULLs since a CSV export
// cannot distinguish the two and NULL is the lossless choice for non-text columns.
// A ragged row surfaces as csv.ErrFieldCount and fails the load.
func nextBatch(reader *csv.Reader, batchSize int) (*stagingBatch, error) {
	var rows [][]any
	for len(rows) < batchSize {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read a staged row: %w", err)
		}

		row := make([]any, len(record))
		for idx, value := range record {
			if value == "" {
				row[idx] = nil
			} else {
				row[idx] = value
			}
		}

		rows = append(rows, row)
	}

	return &stagingBatch{rows: rows}, nil
}
