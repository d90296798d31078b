// Package objectstore gives the intake pipeline one interface over local files, S3
// and GCS.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("object not found")

type Info struct {
	Key         string
	Size        int64
	ContentType string
	Metadata    map[string]string // lower-case keys
}

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

type Store interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (Info, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) error
	List(ctx context.Context, prefix string) ([]Info, error)
}

const (
	SchemeFile = "file"
	SchemeS3   = "s3"
	SchemeGCS  = "gs"
)

// Location is a parsed object reference: scheme, bucket (root directory for files)
// and key.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseLocation accepts s3://bucket/key, gs://bucket/key, file:///abs/path and bare
// local paths. Local paths split into directory (Bucket) and file name (Key).
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, errors.New("empty object reference")
	}
	if !strings.Contains(raw, "://") {
		return fileLocation(raw), nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse %q: %w", raw, err)
	}
	switch u.Scheme {
	case SchemeS3, SchemeGCS:
		if u.Host == "" {
			return Location{}, fmt.Errorf("%q: missing bucket", raw)
		}
		return Location{Scheme: u.Scheme, Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}, nil
	case SchemeFile:
		return fileLocation(u.Path), nil
	}
	return Location{}, fmt.Errorf("%q: unsupported scheme %q", raw, u.Scheme)
}

func fileLocation(p string) Location {
	p = filepath.Clean(p)
	return Location{Scheme: SchemeFile, Bucket: filepath.Dir(p), Key: filepath.Base(p)}
}

func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return "file://" + filepath.ToSlash(filepath.Join(l.Bucket, l.Key))
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// Join appends key segments to the location's key.
func (l Location) Join(parts ...string) Location {
	segs := make([]string, 0, len(parts)+1)
	if k := strings.Trim(l.Key, "/"); k != "" {
		segs = append(segs, k)
	}
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			segs = append(segs, p)
		}
	}
	l.Key = strings.Join(segs, "/")
	return l
}

func normalizeMeta(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.ToLower(k)
		k = strings.TrimPrefix(k, "x-amz-meta-")
		out[k] = v
	}
	return out
}
