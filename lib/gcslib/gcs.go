package gcslib

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

type GCSClient struct {
	client *storage.Client
	bucket string
}

func NewGCSClient(client *storage.Client, bucket string) GCSClient {
	return GCSClient{
		client: client,
		bucket: bucket,
	}
}

// URI returns the gs:// URI for [key], the form BigQuery extract jobs expect.
func (g GCSClient) URI(key string) string {
	return fmt.Sprintf("gs://%s/%s", g.bucket, key)
}

// ListFiles returns the object keys under [prefix].
func (g GCSClient) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	bkt := g.client.Bucket(g.bucket)
	it := bkt.Objects(ctx, &storage.Query{Prefix: prefix})

	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %q: %w", prefix, err)
		}

		// Skip the synthetic folder placeholder some tools create.
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}

		keys = append(keys, attrs.Name)
	}

	return keys, nil
}

// NewReader opens the object at [key] for streaming reads. The caller owns the closer.
func (g GCSClient) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open object %q: %w", key, err)
	}

	return reader, nil
}

func (g GCSClient) Delete(ctx context.Context, key string) error {
	if err := g.client.Bucket(g.bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete object %q: %w", key, err)
	}

	return nil
}

// Move copies [srcKey] to [dstKey] and deletes the source only once the copy has been
// confirmed, so an interrupted move can duplicate the object but never lose it.
func (g GCSClient) Move(ctx context.Context, srcKey string, dstKey string) error {
	bkt := g.client.Bucket(g.bucket)

	copier := bkt.Object(dstKey).CopierFrom(bkt.Object(srcKey))
	attrs, err := copier.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to copy object %q to %q: %w", srcKey, dstKey, err)
	}

	if attrs.Name != dstKey {
		return fmt.Errorf("copy of %q landed at %q, expected %q", srcKey, attrs.Name, dstKey)
	}

	if err := bkt.Object(srcKey).Delete(ctx); err != nil {
		return fmt.Errorf("copied %q but failed to delete the source: %w", srcKey, err)
	}

	return nil
}
