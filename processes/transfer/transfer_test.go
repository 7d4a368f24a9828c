package transfer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/artie-labs/partition-sync/clients/postgres"
	"github.com/artie-labs/partition-sync/lib/bigquerylib"
	"github.com/artie-labs/partition-sync/lib/config"
)

// fakeWarehouse exports by writing a canned CSV body into the fake stager, the same
// side effect a real extract job has on the bucket.
type fakeWarehouse struct {
	partitionedTables []string
	missingPartitions map[string]bool
	exportErrs        map[string]error
	stager            *fakeStager
}

func (f *fakeWarehouse) ListPartitionedTables(_ context.Context, _ string) ([]string, error) {
	return f.partitionedTables, nil
}

func (f *fakeWarehouse) EnsurePartition(_ context.Context, _ string, tableID string, partitionID string) error {
	if f.missingPartitions[tableID] {
		return fmt.Errorf("table %q, partition %q: %w", tableID, partitionID, bigquerylib.ErrPartitionNotFound)
	}

	return nil
}

func (f *fakeWarehouse) ExportPartition(_ context.Context, _ string, tableID string, partitionID string, gcsURI string) error {
	if err := f.exportErrs[tableID]; err != nil {
		return err
	}

	key := strings.TrimPrefix(gcsURI, "gs://bucket/")
	f.stager.putObject(key, "id,amount\n1,10\n2,20\n")
	return nil
}

type fakeStager struct {
	mu      sync.Mutex
	objects map[string]string

	deleteErr error
	moveErr   error
}

func newFakeStager() *fakeStager {
	return &fakeStager{objects: make(map[string]string)}
}

func (f *fakeStager) putObject(key string, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = body
}

func (f *fakeStager) hasObject(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeStager) URI(key string) string {
	return "gs://bucket/" + key
}

func (f *fakeStager) ListFiles(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

func (f *fakeStager) NewReader(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q does not exist", key)
	}

	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeStager) Delete(_ context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeStager) Move(_ context.Context, srcKey string, dstKey string) error {
	if f.moveErr != nil {
		return f.moveErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	body, ok := f.objects[srcKey]
	if !ok {
		return fmt.Errorf("object %q does not exist", srcKey)
	}

	f.objects[dstKey] = body
	delete(f.objects, srcKey)
	return nil
}

type fakeLoader struct {
	loadErrs map[string]error
}

func (f *fakeLoader) Load(_ context.Context, src io.Reader, destinationTable string, _ postgres.LoadOptions) (int64, error) {
	if err := f.loadErrs[destinationTable]; err != nil {
		return 0, err
	}

	body, err := io.ReadAll(src)
	if err != nil {
		return 0, err
	}

	// Rows are everything after the header.
	return int64(len(strings.Split(strings.TrimSpace(string(body)), "\n")) - 1), nil
}

func testConfig(tables ...config.Table) config.Config {
	var cfg config.Config
	cfg.BigQuery.Dataset = "analytics"
	cfg.GCS.Bucket = "bucket"
	cfg.Transfer.BatchSize = 1000
	cfg.Transfer.MaxWorkers = 2
	cfg.Transfer.Tables = tables
	return cfg
}

var testNow = time.Date(2024, 1, 15, 2, 0, 0, 0, time.UTC)

func TestPipeline_Run_Success(t *testing.T) {
	stager := newFakeStager()
	warehouse := &fakeWarehouse{stager: stager}
	pipeline := NewPipeline(warehouse, stager, &fakeLoader{}, testConfig(config.Table{Name: "orders"}))

	summary, err := pipeline.Run(context.Background(), testNow)
	assert.NoError(t, err)
	assert.False(t, summary.Failed())
	assert.Len(t, summary.Results, 1)
	assert.Equal(t, StateLoaded, summary.Results[0].State)
	assert.Equal(t, "20240114", summary.Results[0].PartitionID)
	assert.Equal(t, int64(2), summary.Results[0].Rows)

	// The staged file must not exist under either prefix after a successful load.
	assert.False(t, stager.hasObject("processing_zone/orders_20240114.csv"))
	assert.False(t, stager.hasObject("unprocess_zone/orders_20240114.csv"))

	loaded, failed := summary.Counts()
	assert.Equal(t, 1, loaded)
	assert.Equal(t, 0, failed)
}

func TestPipeline_Run_PartitionNotFound(t *testing.T) {
	stager := newFakeStager()
	warehouse := &fakeWarehouse{
		stager:            stager,
		missingPartitions: map[string]bool{"orders": true},
	}
	pipeline := NewPipeline(warehouse, stager, &fakeLoader{},
		testConfig(config.Table{Name: "orders"}, config.Table{Name: "customers"}))

	summary, err := pipeline.Run(context.Background(), testNow)
	assert.NoError(t, err)
	assert.True(t, summary.Failed())

	byTable := make(map[string]Result)
	for _, result := range summary.Results {
		byTable[result.Table.Name] = result
	}

	// Only the table with the missing partition fails, its sibling still loads.
	assert.Equal(t, StateExportFailed, byTable["orders"].State)
	assert.ErrorIs(t, byTable["orders"].Err, bigquerylib.ErrPartitionNotFound)
	assert.Equal(t, StateLoaded, byTable["customers"].State)

	// No file was ever created for the failed export.
	assert.False(t, stager.hasObject("processing_zone/orders_20240114.csv"))
	assert.False(t, stager.hasObject("unprocess_zone/orders_20240114.csv"))
}

func TestPipeline_Run_ExportFailed(t *testing.T) {
	stager := newFakeStager()
	warehouse := &fakeWarehouse{
		stager:     stager,
		exportErrs: map[string]error{"orders": fmt.Errorf("extract job failed")},
	}
	pipeline := NewPipeline(warehouse, stager, &fakeLoader{}, testConfig(config.Table{Name: "orders"}))

	summary, err := pipeline.Run(context.Background(), testNow)
	assert.NoError(t, err)
	assert.True(t, summary.Failed())
	assert.Equal(t, StateExportFailed, summary.Results[0].State)
	assert.ErrorContains(t, summary.Results[0].Err, "extract job failed")
}

func TestPipeline_Run_LoadFailureQuarantines(t *testing.T) {
	stager := newFakeStager()
	warehouse := &fakeWarehouse{stager: stager}
	loader := &fakeLoader{loadErrs: map[string]error{"orders": fmt.Errorf("malformed row")}}
	pipeline := NewPipeline(warehouse, stager, loader, testConfig(config.Table{Name: "orders"}))

	summary, err := pipeline.Run(context.Background(), testNow)
	assert.NoError(t, err)
	assert.True(t, summary.Failed())
	assert.Equal(t, StateQuarantined, summary.Results[0].State)
	assert.ErrorContains(t, summary.Results[0].Err, "malformed row")

	// The staged file moved to the unprocessed prefix, it exists in exactly one place.
	assert.False(t, stager.hasObject("processing_zone/orders_20240114.csv"))
	assert.True(t, stager.hasObject("unprocess_zone/orders_20240114.csv"))
}

func TestPipeline_Run_CleanupFailureDoesNotDemote(t *testing.T) {
	stager := newFakeStager()
	stager.deleteErr = fmt.Errorf("storage unavailable")
	warehouse := &fakeWarehouse{stager: stager}
	pipeline := NewPipeline(warehouse, stager, &fakeLoader{}, testConfig(config.Table{Name: "orders"}))

	summary, err := pipeline.Run(context.Background(), testNow)
	assert.NoError(t, err)

	// The load succeeded, a failed delete afterwards is logged but not a table failure.
	assert.False(t, summary.Failed())
	assert.Equal(t, StateLoaded, summary.Results[0].State)
	assert.True(t, stager.hasObject("processing_zone/orders_20240114.csv"))
}

func TestPipeline_Run_QuarantineMoveFailure(t *testing.T) {
	stager := newFakeStager()
	stager.moveErr = fmt.Errorf("storage unavailable")
	warehouse := &fakeWarehouse{stager: stager}
	loader := &fakeLoader{loadErrs: map[string]error{"orders": fmt.Errorf("constraint violation")}}
	pipeline := NewPipeline(warehouse, stager, loader, testConfig(config.Table{Name: "orders"}))

	summary, err := pipeline.Run(context.Background(), testNow)
	assert.NoError(t, err)

	// The table is still quarantined and the file stays put for the next run to overwrite.
	assert.Equal(t, StateQuarantined, summary.Results[0].State)
	assert.True(t, stager.hasObject("processing_zone/orders_20240114.csv"))
	assert.False(t, stager.hasObject("unprocess_zone/orders_20240114.csv"))
}

func TestPipeline_Run_OverwritesLeftoverStagedFile(t *testing.T) {
	stager := newFakeStager()
	// A previous run was interrupted after export; its staged file is still around.
	stager.putObject("processing_zone/orders_20240114.csv", "stale,header\n")

	warehouse := &fakeWarehouse{stager: stager}
	pipeline := NewPipeline(warehouse, stager, &fakeLoader{}, testConfig(config.Table{Name: "orders"}))

	summary, err := pipeline.Run(context.Background(), testNow)
	assert.NoError(t, err)
	assert.False(t, summary.Failed())

	// The re-export overwrote the leftover by key and the load consumed the fresh copy.
	assert.Equal(t, int64(2), summary.Results[0].Rows)
	assert.False(t, stager.hasObject("processing_zone/orders_20240114.csv"))
}

func TestPipeline_Run_DiscoversTables(t *testing.T) {
	stager := newFakeStager()
	warehouse := &fakeWarehouse{
		stager:            stager,
		partitionedTables: []string{"orders", "customer_events"},
	}
	pipeline := NewPipeline(warehouse, stager, &fakeLoader{}, testConfig())

	summary, err := pipeline.Run(context.Background(), testNow)
	assert.NoError(t, err)
	assert.False(t, summary.Failed())
	assert.Len(t, summary.Results, 2)
}

func TestPipeline_Run_NoTables(t *testing.T) {
	stager := newFakeStager()
	warehouse := &fakeWarehouse{stager: stager}
	pipeline := NewPipeline(warehouse, stager, &fakeLoader{}, testConfig())

	summary, err := pipeline.Run(context.Background(), testNow)
	assert.NoError(t, err)
	assert.Empty(t, summary.Results)
	assert.False(t, summary.Failed())
}
