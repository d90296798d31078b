// Package catalog stores delivered catalog items idempotently and keeps the H3
// cell index of their footprints.
package catalog

import (
	"context"
	"errors"

	"github.com/mohammed-shakir/raster-intake/internal/stac"
)

var ErrNotFound = errors.New("catalog: item not found")

// Record is one stored item version.
type Record struct {
	Collection  string
	ID          string
	Body        []byte
	LogicalTS   int64  // unix nanoseconds
	Fingerprint string // keys.Fingerprint of Body
	Cells       []string
}

type PutResult int

const (
	Inserted PutResult = iota
	Updated
	// Unchanged: the stored body has the same fingerprint.
	Unchanged
	// Stale: the stored version wins last-write-wins ordering.
	Stale
)

func (r PutResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	case Stale:
		return "stale"
	}
	return "unknown"
}

// Store is the catalog store contract. Implementations classify backend failures
// as errkind.StoreUnavailable.
type Store interface {
	// PutItem upserts by (collection, id) with last-write-wins on LogicalTS; equal
	// timestamps keep the larger fingerprint.
	PutItem(ctx context.Context, rec Record) (PutResult, error)
	GetItem(ctx context.Context, collection, id string) (Record, error)
	// ListItems returns the collection's items ordered by id.
	ListItems(ctx context.Context, collection string) ([]Record, error)
	EnsureCollection(ctx context.Context, c stac.Collection) error
	// ItemsForCell returns the ids of items whose footprint covers cell, sorted.
	ItemsForCell(ctx context.Context, collection, cell string) ([]string, error)
}
