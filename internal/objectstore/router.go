package objectstore

import (
	"fmt"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/minio/minio-go/v7"
)

// Router resolves references to a Store per scheme and bucket. Backends whose client
// is nil are rejected.
type Router struct {
	S3  *minio.Client
	GCS *storage.Client

	mu     sync.Mutex
	stores map[string]Store
}

func (r *Router) Resolve(loc Location) (Store, error) {
	id := loc.Scheme + "://" + loc.Bucket
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[id]; ok {
		return s, nil
	}

	var s Store
	switch loc.Scheme {
	case SchemeFile:
		s = NewFileStore(loc.Bucket)
	case SchemeS3:
		if r.S3 == nil {
			return nil, fmt.Errorf("%s: s3 backend not configured", loc)
		}
		s = NewS3Store(r.S3, loc.Bucket)
	case SchemeGCS:
		if r.GCS == nil {
			return nil, fmt.Errorf("%s: gcs backend not configured", loc)
		}
		s = NewGCSStore(r.GCS, loc.Bucket)
	default:
		return nil, fmt.Errorf("%s: unsupported scheme", loc)
	}
	if r.stores == nil {
		r.stores = map[string]Store{}
	}
	r.stores[id] = s
	return s, nil
}

// Open parses raw and resolves its store in one step.
func (r *Router) Open(raw string) (Store, Location, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return nil, Location{}, err
	}
	s, err := r.Resolve(loc)
	return s, loc, err
}

// Register pins a store for scheme://bucket, used by tests and custom backends.
func (r *Router) Register(scheme, bucket string, s Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stores == nil {
		r.stores = map[string]Store{}
	}
	r.stores[scheme+"://"+bucket] = s
}
