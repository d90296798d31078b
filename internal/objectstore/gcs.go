package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

type GCSStore struct {
	bucket *storage.BucketHandle
	name   string
}

func NewGCSStore(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{bucket: client.Bucket(bucket), name: bucket}
}

func (g *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := g.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gs://%s/%s: %w", g.name, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs get %s/%s: %w", g.name, key, err)
	}
	return rc, nil
}

func (g *GCSStore) Stat(ctx context.Context, key string) (Info, error) {
	attrs, err := g.bucket.Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return Info{}, fmt.Errorf("gs://%s/%s: %w", g.name, key, ErrNotFound)
	}
	if err != nil {
		return Info{}, fmt.Errorf("gcs stat %s/%s: %w", g.name, key, err)
	}
	return Info{
		Key:         attrs.Name,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Metadata:    normalizeMeta(attrs.Metadata),
	}, nil
}

func (g *GCSStore) Put(ctx context.Context, key string, r io.Reader, _ int64, opts PutOptions) error {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.Metadata = opts.Metadata
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write %s/%s: %w", g.name, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs finalize %s/%s: %w", g.name, key, err)
	}
	return nil
}

func (g *GCSStore) List(ctx context.Context, prefix string) ([]Info, error) {
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var out []Info
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list %s/%s: %w", g.name, prefix, err)
		}
		out = append(out, Info{Key: attrs.Name, Size: attrs.Size, ContentType: attrs.ContentType})
	}
	return out, nil
}
