package bulk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/mohammed-shakir/raster-intake/internal/objectstore"
)

// ImageryExtensions are the suffixes picked up by prefix enumeration.
var ImageryExtensions = []string{".tif", ".tiff"}

// Source resolves manifest and image references to stores.
type Source interface {
	Open(raw string) (objectstore.Store, objectstore.Location, error)
	Resolve(loc objectstore.Location) (objectstore.Store, error)
}

type manifestEntry struct {
	S3Uri string `json:"S3Uri"`
}

// DecodeManifest reads the JSON manifest format [{"S3Uri": "..."}].
func DecodeManifest(r io.Reader) ([]string, error) {
	var entries []manifestEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	refs := make([]string, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.S3Uri) == "" {
			return nil, fmt.Errorf("manifest entry %d: empty S3Uri", i)
		}
		refs = append(refs, strings.TrimSpace(e.S3Uri))
	}
	return refs, nil
}

// ResolveManifest expands a manifest source into input references. A source is one
// of: a comma separated list, a *.json manifest object, or a prefix ending in "/"
// whose imagery objects are enumerated.
func ResolveManifest(ctx context.Context, src Source, raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return nil, fmt.Errorf("empty manifest source")
	case strings.Contains(raw, ","):
		return splitList(raw), nil
	case strings.HasSuffix(strings.ToLower(raw), ".json"):
		store, loc, err := src.Open(raw)
		if err != nil {
			return nil, err
		}
		rc, err := store.Get(ctx, loc.Key)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", raw, err)
		}
		defer func() { _ = rc.Close() }()
		return DecodeManifest(rc)
	case strings.HasSuffix(raw, "/"):
		return listPrefix(ctx, src, raw)
	}
	return []string{raw}, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func listPrefix(ctx context.Context, src Source, raw string) ([]string, error) {
	loc, err := objectstore.ParseLocation(raw)
	if err != nil {
		return nil, err
	}
	prefix := loc.Key
	if loc.Scheme != objectstore.SchemeFile && prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if loc.Scheme == objectstore.SchemeFile {
		// a local directory is its own root
		loc = objectstore.Location{Scheme: loc.Scheme, Bucket: filepath.Join(loc.Bucket, loc.Key)}
		prefix = ""
	}
	store, err := src.Resolve(loc)
	if err != nil {
		return nil, err
	}
	infos, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, in := range infos {
		if isImagery(in.Key) {
			refs = append(refs, objectstore.Location{Scheme: loc.Scheme, Bucket: loc.Bucket, Key: in.Key}.String())
		}
	}
	return refs, nil
}

// isImagery skips derived previews the same way the enumeration always has.
func isImagery(key string) bool {
	k := strings.ToLower(key)
	if strings.Contains(k, "_preview") {
		return false
	}
	for _, ext := range ImageryExtensions {
		if strings.HasSuffix(k, ext) {
			return true
		}
	}
	return false
}
