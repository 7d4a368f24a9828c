package main

import (
	"cmp"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/artie-labs/partition-sync/clients/postgres"
	"github.com/artie-labs/partition-sync/lib/bigquerylib"
	"github.com/artie-labs/partition-sync/lib/config"
	"github.com/artie-labs/partition-sync/lib/environ"
	"github.com/artie-labs/partition-sync/lib/gcslib"
	"github.com/artie-labs/partition-sync/lib/logger"
	"github.com/artie-labs/partition-sync/processes/transfer"
)

const googleCredentialsEnvKey = "GOOGLE_APPLICATION_CREDENTIALS"

func main() {
	settings, err := config.LoadSettings(os.Args[1:], true)
	if err != nil {
		logger.Fatal("Failed to load settings", slog.Any("err", err))
	}

	_logger, usingSentry := logger.NewLogger(settings)
	slog.SetDefault(_logger.With(slog.String("runID", uuid.New().String())))
	if usingSentry {
		slog.Info("Sentry logger enabled")
	}

	// A scheduled run should die cleanly when the scheduler tears the container down.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := settings.Config

	var bqOpts []option.ClientOption
	if credPath := cfg.BigQuery.PathToCredentials; credPath != "" {
		bqOpts = append(bqOpts, option.WithCredentialsFile(credPath))
	} else if err = environ.MustGetEnv(googleCredentialsEnvKey); err != nil {
		slog.Warn("No explicit credentials configured, relying on application default credentials", slog.Any("err", err))
	}

	bqClient, err := bigquery.NewClient(ctx, cfg.BigQuery.ProjectID, bqOpts...)
	if err != nil {
		logger.Fatal("Failed to start the BigQuery client", slog.Any("err", err))
	}

	defer bqClient.Close()

	var gcsOpts []option.ClientOption
	if credPath := cmp.Or(cfg.GCS.PathToCredentials, cfg.BigQuery.PathToCredentials); credPath != "" {
		gcsOpts = append(gcsOpts, option.WithCredentialsFile(credPath))
	}

	gcsClient, err := storage.NewClient(ctx, gcsOpts...)
	if err != nil {
		logger.Fatal("Failed to start the GCS client", slog.Any("err", err))
	}

	defer gcsClient.Close()

	pgStore, err := postgres.LoadStore(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", slog.Any("err", err))
	}

	defer pgStore.Close()

	slog.Info("Config is loaded",
		slog.String("dataset", cfg.BigQuery.DSN()),
		slog.String("bucket", cfg.GCS.Bucket),
		slog.Int("batchSize", cfg.Transfer.BatchSize),
		slog.Int("maxWorkers", cfg.Transfer.MaxWorkers),
	)

	pipeline := transfer.NewPipeline(
		bigquerylib.NewClient(bqClient, cfg.BigQuery.ProjectID, cfg.BigQuery.Location),
		gcslib.NewGCSClient(gcsClient, cfg.GCS.Bucket),
		pgStore,
		cfg,
	)

	summary, err := pipeline.Run(ctx, time.Now())
	if err != nil {
		logger.Fatal("Run aborted", slog.Any("err", err))
	}

	loaded, failed := summary.Counts()
	slog.Info("Run completed", slog.Int("loaded", loaded), slog.Int("failed", failed))

	if summary.Failed() {
		os.Exit(1)
	}
}
