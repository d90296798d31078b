package bulk

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/mohammed-shakir/raster-intake/internal/objectstore"
)

func TestDecodeManifest(t *testing.T) {
	refs, err := DecodeManifest(strings.NewReader(`[{"S3Uri":"s3://b/a.tif"},{"S3Uri":" s3://b/c.tif "}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(refs, []string{"s3://b/a.tif", "s3://b/c.tif"}) {
		t.Fatalf("refs=%v", refs)
	}
	if _, err := DecodeManifest(strings.NewReader(`[{"S3Uri":""}]`)); err == nil {
		t.Fatalf("empty uri must be rejected")
	}
	if _, err := DecodeManifest(strings.NewReader(`{"S3Uri":"x"}`)); err == nil {
		t.Fatalf("object instead of list must be rejected")
	}
}

func TestResolveManifest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.tif", "b.TIFF", "a_preview.tif", "notes.txt", "sub/c.tif"} {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	manifest := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(manifest, []byte(`[{"S3Uri":"s3://in/one.tif"}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	router := &objectstore.Router{}

	got, err := ResolveManifest(ctx, router, dir+"/")
	if err != nil {
		t.Fatalf("prefix: %v", err)
	}
	want := []string{
		"file://" + filepath.ToSlash(filepath.Join(dir, "a.tif")),
		"file://" + filepath.ToSlash(filepath.Join(dir, "b.TIFF")),
		"file://" + filepath.ToSlash(filepath.Join(dir, "sub/c.tif")),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("prefix refs=%v want %v", got, want)
	}

	got, err = ResolveManifest(ctx, router, manifest)
	if err != nil || !reflect.DeepEqual(got, []string{"s3://in/one.tif"}) {
		t.Fatalf("json manifest=%v err=%v", got, err)
	}

	got, _ = ResolveManifest(ctx, router, "s3://in/a.tif, s3://in/b.tif,")
	if !reflect.DeepEqual(got, []string{"s3://in/a.tif", "s3://in/b.tif"}) {
		t.Fatalf("list=%v", got)
	}

	got, _ = ResolveManifest(ctx, router, "s3://in/single.tif")
	if !reflect.DeepEqual(got, []string{"s3://in/single.tif"}) {
		t.Fatalf("single=%v", got)
	}

	if _, err := ResolveManifest(ctx, router, "s3://in/prefix/"); err == nil {
		t.Fatalf("s3 without a client must fail")
	}
}
