package objectstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLocation(t *testing.T) {
	cases := []struct {
		in   string
		want Location
	}{
		{"s3://imagery/raw/a.tif", Location{SchemeS3, "imagery", "raw/a.tif"}},
		{"gs://bucket/x/y.tiff", Location{SchemeGCS, "bucket", "x/y.tiff"}},
		{"s3://bucket", Location{SchemeS3, "bucket", ""}},
		{"file:///data/in/a.tif", Location{SchemeFile, "/data/in", "a.tif"}},
		{"/data/in/b.tif", Location{SchemeFile, "/data/in", "b.tif"}},
	}
	for _, tc := range cases {
		got, err := ParseLocation(tc.in)
		if err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %+v want %+v", tc.in, got, tc.want)
		}
	}
	for _, bad := range []string{"", "ftp://host/x", "s3:///nobucket"} {
		if _, err := ParseLocation(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestLocation_JoinAndString(t *testing.T) {
	loc := Location{Scheme: SchemeS3, Bucket: "out", Key: "stac/"}
	got := loc.Join("OSML", "item-1", "preview.png")
	if got.String() != "s3://out/stac/OSML/item-1/preview.png" {
		t.Fatalf("got %s", got)
	}
	if (Location{Scheme: SchemeS3, Bucket: "b"}).Join("k").Key != "k" {
		t.Fatalf("join on empty key")
	}
}

func TestFileStore_PutStatGetList(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	err := s.Put(ctx, "c/i/stats.json", strings.NewReader(`{"a":1}`), 7, PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"SHA256": "abc"},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	info, err := s.Stat(ctx, "c/i/stats.json")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != 7 || info.ContentType != "application/json" || info.Metadata["sha256"] != "abc" {
		t.Fatalf("info=%+v", info)
	}

	rc, err := s.Get(ctx, "c/i/stats.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != `{"a":1}` {
		t.Fatalf("body=%q", b)
	}

	_ = s.Put(ctx, "c/j/preview.png", strings.NewReader("png"), 3, PutOptions{})
	_ = s.Put(ctx, "other/k.tif", strings.NewReader("tif"), 3, PutOptions{})
	list, err := s.List(ctx, "c/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Key != "c/i/stats.json" || list[1].Key != "c/j/preview.png" {
		t.Fatalf("list=%+v (sidecars must be hidden)", list)
	}
}

func TestFileStore_FailedPutLeavesNoSidecar(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := NewFileStore(root)

	// "busy" is a non-empty directory, so renaming the object onto it fails.
	if err := s.Put(ctx, "busy/child.tif", strings.NewReader("x"), 1, PutOptions{}); err != nil {
		t.Fatalf("Put child: %v", err)
	}
	err := s.Put(ctx, "busy", strings.NewReader("y"), 1, PutOptions{Metadata: map[string]string{"sha256": "new"}})
	if err == nil {
		t.Fatalf("Put onto a directory must fail")
	}
	if _, err := os.Stat(filepath.Join(root, ".busy"+metaSuffix)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("sidecar written for an object that was never stored: %v", err)
	}

	if err := s.Put(ctx, "a.tif", strings.NewReader("one"), 3, PutOptions{Metadata: map[string]string{"sha256": "1"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "a.tif", strings.NewReader("two"), 3, PutOptions{Metadata: map[string]string{"sha256": "2"}}); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	info, err := s.Stat(ctx, "a.tif")
	if err != nil || info.Metadata["sha256"] != "2" {
		t.Fatalf("info=%+v err=%v", info, err)
	}
	entries, _ := os.ReadDir(root)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".put-") || strings.HasPrefix(e.Name(), ".meta-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStore_NotFoundAndTraversal(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	if _, err := s.Stat(ctx, "missing.tif"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Stat missing: %v", err)
	}
	if _, err := s.Get(ctx, "missing.tif"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: %v", err)
	}
	if _, err := s.Get(ctx, "../../etc/passwd"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("traversal must be rejected, got %v", err)
	}
}

func TestRouter_ResolvesAndCaches(t *testing.T) {
	dir := t.TempDir()
	r := &Router{}

	s1, loc, err := r.Open(filepath.Join(dir, "a.tif"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if loc.Key != "a.tif" {
		t.Fatalf("key=%q", loc.Key)
	}
	s2, _, _ := r.Open("file://" + filepath.Join(dir, "b.tif"))
	if s1 != s2 {
		t.Fatalf("expected cached store for same directory")
	}

	if _, _, err := r.Open("s3://bucket/a.tif"); err == nil {
		t.Fatalf("s3 without client must fail")
	}

	mem := NewFileStore(t.TempDir())
	r.Register(SchemeS3, "bucket", mem)
	got, _, err := r.Open("s3://bucket/a.tif")
	if err != nil || got != Store(mem) {
		t.Fatalf("registered store not returned: %v", err)
	}
}
