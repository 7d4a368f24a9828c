package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/artie-labs/partition-sync/lib/jitter"
	"github.com/artie-labs/partition-sync/lib/retry"
)

const (
	pingMaxAttempts = 3
)

type Store interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Conn(ctx context.Context) (*sql.Conn, error)
	Close() error
}

type storeWrapper struct {
	*sql.DB
}

// Open dials the database and verifies connectivity before anything uses the handle.
// The ping is retried with backoff since this runs at startup, typically right as
// sidecar proxies and the database itself are still coming up.
func Open(ctx context.Context, driverName, dsn string) (Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open a %s connection: %w", driverName, err)
	}

	retryCfg := retry.NewRetryConfig(retry.NewRetryConfigArgs{
		JitterBaseMs:   500,
		JitterMaxMs:    jitter.DefaultMaxMs,
		MaxAttempts:    pingMaxAttempts,
		IsRetryableErr: isRetryableError,
	})

	err = retryCfg.WithRetries(func(_ int, _ error) error {
		return db.PingContext(ctx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to validate the database connection: %w", err)
	}

	return &storeWrapper{DB: db}, nil
}
