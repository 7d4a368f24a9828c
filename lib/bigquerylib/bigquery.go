package bigquerylib

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// ErrPartitionNotFound is returned when a table has no partition for the requested date.
var ErrPartitionNotFound = errors.New("partition not found")

type Client struct {
	client    *bigquery.Client
	projectID string
	location  string
}

func NewClient(client *bigquery.Client, projectID string, location string) *Client {
	return &Client{
		client:    client,
		projectID: projectID,
		location:  location,
	}
}

// ListPartitionedTables returns the tables in [datasetID] that have time or range partitioning.
func (c *Client) ListPartitionedTables(ctx context.Context, datasetID string) ([]string, error) {
	it := c.client.Dataset(datasetID).Tables(ctx)

	var partitionedTables []string
	for {
		table, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list tables in dataset %q: %w", datasetID, err)
		}

		metadata, err := table.Metadata(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch metadata for table %q: %w", table.TableID, err)
		}

		if metadata.TimePartitioning != nil || metadata.RangePartitioning != nil {
			partitionedTables = append(partitionedTables, table.TableID)
		}
	}

	return partitionedTables, nil
}

// EnsurePartition checks INFORMATION_SCHEMA.PARTITIONS for [partitionID] on [tableID].
// Returns [ErrPartitionNotFound] if the table has no matching partition.
func (c *Client) EnsurePartition(ctx context.Context, datasetID string, tableID string, partitionID string) error {
	query := c.client.Query(fmt.Sprintf(`
SELECT partition_id
FROM %s.INFORMATION_SCHEMA.PARTITIONS
WHERE table_name = @table_name AND partition_id = @partition_id`,
		fmt.Sprintf("`%s.%s`", c.projectID, datasetID),
	))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "table_name", Value: tableID},
		{Name: "partition_id", Value: partitionID},
	}

	it, err := query.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to query partition metadata for table %q: %w", tableID, err)
	}

	var row []bigquery.Value
	if err := it.Next(&row); err != nil {
		if err == iterator.Done {
			return fmt.Errorf("table %q, partition %q: %w", tableID, partitionID, ErrPartitionNotFound)
		}

		return fmt.Errorf("failed to read partition metadata for table %q: %w", tableID, err)
	}

	return nil
}

// ExportPartition runs an extract job for a single partition (via the table decorator) into
// a CSV file at [gcsURI]. The file carries a header row, which the loader relies on.
func (c *Client) ExportPartition(ctx context.Context, datasetID string, tableID string, partitionID string, gcsURI string) error {
	ds := c.client.Dataset(datasetID)
	metadata, err := ds.Table(tableID).Metadata(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch metadata for table %q: %w", tableID, err)
	}

	if metadata.TimePartitioning == nil && metadata.RangePartitioning == nil {
		return fmt.Errorf("table %q is not partitioned", tableID)
	}

	gcsRef := bigquery.NewGCSReference(gcsURI)
	gcsRef.DestinationFormat = bigquery.CSV
	gcsRef.FieldDelimiter = ","

	slog.Info("Exporting partition",
		slog.String("table", tableID),
		slog.String("partitionID", partitionID),
		slog.String("destination", gcsURI),
	)

	extractor := ds.Table(fmt.Sprintf("%s$%s", tableID, partitionID)).ExtractorTo(gcsRef)
	extractor.Location = c.location

	job, err := extractor.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to run extract job: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for extract job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("extract job failed: %w", err)
	}

	return nil
}
