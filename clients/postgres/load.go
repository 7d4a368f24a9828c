package postgres

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

type LoadOptions struct {
	BatchSize int
	// Truncate clears the destination table before the first batch instead of appending.
	Truncate bool
}

// Load streams a staged CSV file into [destinationTable] via the Postgres binary copy
// protocol, committing [opts.BatchSize] rows per COPY. Column names come from the header row.
func (s *Store) Load(ctx context.Context, src io.Reader, destinationTable string, opts LoadOptions) (int64, error) {
	if opts.BatchSize <= 0 {
		return 0, fmt.Errorf("batch size has to be a positive number, current value: %d", opts.BatchSize)
	}

	reader := csv.NewReader(src)
	columns, err := readHeader(reader)
	if err != nil {
		return 0, err
	}

	tableID := pgx.Identifier{s.schema, destinationTable}
	if opts.Truncate {
		if _, err := s.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", tableID.Sanitize())); err != nil {
			return 0, fmt.Errorf("failed to truncate table %q: %w", destinationTable, err)
		}
	}

	conn, err := s.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get a connection: %w", err)
	}

	defer conn.Close()

	var totalRows int64
	for {
		batch, err := nextBatch(reader, opts.BatchSize)
		if err != nil {
			return totalRows, err
		}

		if len(batch.rows) == 0 {
			break
		}

		err = conn.Raw(func(driverConn any) error {
			stdlibConn, ok := driverConn.(*stdlib.Conn)
			if !ok {
				return fmt.Errorf("failed to cast driver connection to *stdlib.Conn")
			}

			pgxConn := stdlibConn.Conn()
			copyCount, err := pgxConn.CopyFrom(ctx, tableID, columns, batch)
			if err != nil {
				return fmt.Errorf("failed to copy rows: %w", err)
			}

			if copyCount != int64(len(batch.rows)) {
				return fmt.Errorf("expected %d rows to be copied, but got %d", len(batch.rows), copyCount)
			}

			totalRows += copyCount
			return nil
		})

		if err != nil {
			return totalRows, err
		}

		slog.Debug("Copied a staged batch",
			slog.String("table", destinationTable),
			slog.Int("rows", len(batch.rows)),
			slog.Int64("totalRows", totalRows),
		)
	}

	return totalRows, nil
}
