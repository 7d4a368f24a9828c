package postgres

import (
	"context"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/artie-labs/partition-sync/lib/config"
	"github.com/artie-labs/partition-sync/lib/db"
)

type Store struct {
	db.Store

	schema string
}

func LoadStore(ctx context.Context, cfg config.Postgres) (*Store, error) {
	store, err := db.Open(ctx, "pgx", cfg.DSN())
	if err != nil {
		return nil, err
	}

	return &Store{
		Store:  store,
		schema: cfg.Schema,
	}, nil
}
