package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/artie-labs/partition-sync/clients/postgres"
	"github.com/artie-labs/partition-sync/lib/bigquerylib"
	"github.com/artie-labs/partition-sync/lib/config"
)

// Warehouse is the source side: partition discovery and export into object storage.
type Warehouse interface {
	ListPartitionedTables(ctx context.Context, datasetID string) ([]string, error)
	EnsurePartition(ctx context.Context, datasetID string, tableID string, partitionID string) error
	ExportPartition(ctx context.Context, datasetID string, tableID string, partitionID string, gcsURI string) error
}

// Stager is the object-store side: staged file access and the two prefix transitions.
type Stager interface {
	URI(key string) string
	ListFiles(ctx context.Context, prefix string) ([]string, error)
	NewReader(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Move(ctx context.Context, srcKey string, dstKey string) error
}

// Loader is the destination side: streaming a staged file's rows into a table.
type Loader interface {
	Load(ctx context.Context, src io.Reader, destinationTable string, opts postgres.LoadOptions) (int64, error)
}

type Pipeline struct {
	warehouse Warehouse
	stager    Stager
	loader    Loader
	cfg       config.Config
}

func NewPipeline(warehouse Warehouse, stager Stager, loader Loader, cfg config.Config) *Pipeline {
	return &Pipeline{
		warehouse: warehouse,
		stager:    stager,
		loader:    loader,
		cfg:       cfg,
	}
}

type Result struct {
	Table       config.Table
	PartitionID string
	State       TableState
	Rows        int64
	Err         error
}

type Summary struct {
	Results []Result
}

func (s Summary) Failed() bool {
	for _, result := range s.Results {
		if !result.State.Succeeded() {
			return true
		}
	}

	return false
}

func (s Summary) Counts() (loaded int, failed int) {
	for _, result := range s.Results {
		if result.State.Succeeded() {
			loaded++
		} else {
			failed++
		}
	}

	return loaded, failed
}

// Run transfers yesterday's partition for every configured table. Tables run independently
// under a pool bounded by transfer.maxWorkers, one table failing never blocks the others.
func (p *Pipeline) Run(ctx context.Context, now time.Time) (Summary, error) {
	partitionID := bigquerylib.YesterdayPartitionID(now)

	tables, err := p.resolveTables(ctx)
	if err != nil {
		return Summary{}, err
	}

	if len(tables) == 0 {
		slog.Info("No partitioned tables to transfer")
		return Summary{}, nil
	}

	// Leftovers from an interrupted run are safe to ignore, this run's exports overwrite
	// any key it is about to touch. Surface them anyway so an operator can tell the
	// difference between "interrupted" and "quarantined".
	if leftovers, err := p.stager.ListFiles(ctx, ProcessingPrefix); err != nil {
		slog.Warn("Failed to list the processing prefix", slog.Any("err", err))
	} else if len(leftovers) > 0 {
		slog.Warn("Found leftover staged files from a previous run",
			slog.Int("count", len(leftovers)),
			slog.Any("keys", leftovers),
		)
	}

	results := make([]Result, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Transfer.MaxWorkers)
	for idx, table := range tables {
		g.Go(func() error {
			results[idx] = p.runTable(gctx, table, partitionID)
			return nil
		})
	}

	// Workers report failures through their Result, never through the group.
	_ = g.Wait()

	return Summary{Results: results}, nil
}

// resolveTables returns the configured table list, falling back to discovering every
// partitioned table in the dataset when the config doesn't name any.
func (p *Pipeline) resolveTables(ctx context.Context) ([]config.Table, error) {
	if tables := p.cfg.Transfer.Tables; len(tables) > 0 {
		return tables, nil
	}

	tableIDs, err := p.warehouse.ListPartitionedTables(ctx, p.cfg.BigQuery.Dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to discover partitioned tables: %w", err)
	}

	tables := make([]config.Table, len(tableIDs))
	for idx, tableID := range tableIDs {
		tables[idx] = config.Table{Name: tableID}
	}

	return tables, nil
}

// runTable walks one table through the state machine:
// PENDING → EXPORTED → LOADED, with EXPORT_FAILED and QUARANTINED as the failure terminals.
// Export and load are strictly sequential, each step consumes the previous step's artifact.
func (p *Pipeline) runTable(ctx context.Context, table config.Table, partitionID string) Result {
	result := Result{
		Table:       table,
		PartitionID: partitionID,
		State:       StatePending,
	}

	log := slog.With(
		slog.String("table", table.Name),
		slog.String("partitionID", partitionID),
	)

	stagedKey := StagedKey(table.Name, partitionID)
	if err := p.export(ctx, table, partitionID, stagedKey); err != nil {
		// No staged file exists on an export failure, there is nothing to clean up.
		result.State = StateExportFailed
		result.Err = err

		if errors.Is(err, bigquerylib.ErrPartitionNotFound) {
			log.Warn("No partition for yesterday, skipping table", slog.Any("err", err))
		} else {
			log.Error("Failed to export partition", slog.Any("err", err))
		}

		return result
	}

	result.State = StateExported

	rows, err := p.load(ctx, table, stagedKey)
	if err != nil {
		result.State = StateQuarantined
		result.Err = err
		log.Error("Failed to load staged file, quarantining it", slog.Any("err", err))

		if moveErr := p.stager.Move(ctx, stagedKey, QuarantineKey(table.Name, partitionID)); moveErr != nil {
			// The file stays under the processing prefix and the next run's export
			// overwrites it, so nothing is lost, just noisy.
			log.Error("Failed to move staged file to the unprocessed prefix", slog.Any("err", moveErr))
		}

		return result
	}

	result.State = StateLoaded
	result.Rows = rows
	log.Info("Loaded partition", slog.Int64("rows", rows))

	// A cleanup failure does not demote an already-successful load.
	if err := p.stager.Delete(ctx, stagedKey); err != nil {
		log.Warn("Failed to delete staged file after a successful load", slog.Any("err", err))
	}

	return result
}

func (p *Pipeline) export(ctx context.Context, table config.Table, partitionID string, stagedKey string) error {
	datasetID := p.cfg.BigQuery.Dataset
	if err := p.warehouse.EnsurePartition(ctx, datasetID, table.Name, partitionID); err != nil {
		return err
	}

	return p.warehouse.ExportPartition(ctx, datasetID, table.Name, partitionID, p.stager.URI(stagedKey))
}

func (p *Pipeline) load(ctx context.Context, table config.Table, stagedKey string) (int64, error) {
	reader, err := p.stager.NewReader(ctx, stagedKey)
	if err != nil {
		return 0, err
	}

	defer reader.Close()

	return p.loader.Load(ctx, reader, table.Destination(), postgres.LoadOptions{
		BatchSize: p.cfg.Transfer.BatchSize,
		Truncate:  table.Truncate,
	})
}
