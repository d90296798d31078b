package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mohammed-shakir/raster-intake/internal/errkind"
	"github.com/mohammed-shakir/raster-intake/internal/extract"
	h3mapper "github.com/mohammed-shakir/raster-intake/internal/mapper/h3"
	"github.com/mohammed-shakir/raster-intake/internal/objectstore"
	"github.com/mohammed-shakir/raster-intake/internal/publish"
	"github.com/mohammed-shakir/raster-intake/internal/raster/rastertest"
	"github.com/mohammed-shakir/raster-intake/internal/stac"
)

type recorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *recorder) Emit(_ context.Context, key string, _ []byte, _ time.Time) (publish.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return publish.Delivery{Topic: "items", Offset: int64(len(r.keys) - 1)}, nil
}

func newProcessor(t *testing.T, out string, em publish.Emitter) *Processor {
	t.Helper()
	ex := extract.New(&objectstore.Router{}, extract.Options{Preview: true, Stats: true, PreviewSize: 16, TempDir: t.TempDir()}, nil)
	b := stac.NewBuilder(stac.Config{
		CatalogURL:   "https://catalog.example/stac",
		AssetBaseURL: "file://" + out,
		H3Res:        7,
		H3MaxCells:   64,
	}, h3mapper.New())
	pub := publish.New(objectstore.NewFileStore(out), "", em, publish.Options{})
	return NewProcessor(ex, b, pub, Defaults{CollectionID: "OSML"}, nil)
}

func writeScene(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestItemID_StableAndDistinct(t *testing.T) {
	a := ItemID("s3://bucket/a.tif")
	if a != ItemID("s3://bucket/a.tif ") {
		t.Fatalf("id must be stable")
	}
	if a == ItemID("s3://bucket/b.tif") {
		t.Fatalf("distinct refs must get distinct ids")
	}
}

func TestProcess_EndToEnd(t *testing.T) {
	out := t.TempDir()
	em := &recorder{}
	p := newProcessor(t, out, em)
	ref := writeScene(t, "scene.tif", rastertest.GeoTIFF(rastertest.UTMScene()))

	o, err := p.Process(context.Background(), Request{SourceRef: ref})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if o.Item.ID != ItemID(ref) || o.Item.Collection != "OSML" {
		t.Fatalf("item=%s/%s", o.Item.Collection, o.Item.ID)
	}
	if len(o.Item.Properties.H3Cells) == 0 {
		t.Fatalf("expected h3 cells")
	}
	if len(o.Publish.Uploaded) != 2 {
		t.Fatalf("uploaded=%v", o.Publish.Uploaded)
	}
	for _, name := range []string{"preview", "stats"} {
		a, ok := o.Item.Assets[name]
		if !ok {
			t.Fatalf("missing %s asset", name)
		}
		loc, err := objectstore.ParseLocation(a.Href)
		if err != nil {
			t.Fatalf("href %q: %v", a.Href, err)
		}
		if _, err := os.Stat(filepath.Join(loc.Bucket, loc.Key)); err != nil {
			t.Fatalf("asset %s not stored at %s: %v", name, a.Href, err)
		}
	}
	if len(em.keys) != 1 || em.keys[0] != "OSML/"+o.Item.ID {
		t.Fatalf("emitted=%v", em.keys)
	}

	// second run is a no-op upload with the same item
	again, err := p.Process(context.Background(), Request{SourceRef: ref})
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if len(again.Publish.Uploaded) != 0 || again.Item.ID != o.Item.ID {
		t.Fatalf("reprocess uploaded=%v id=%s", again.Publish.Uploaded, again.Item.ID)
	}
}

func TestProcess_ExplicitRequestWins(t *testing.T) {
	p := newProcessor(t, t.TempDir(), &recorder{})
	ref := writeScene(t, "geo.tif", rastertest.GeoTIFF(rastertest.GeographicScene()))
	dt := time.Date(2020, 2, 3, 4, 5, 6, 0, time.UTC)

	o, err := p.Process(context.Background(), Request{
		SourceRef: ref, ItemID: "custom", CollectionID: "other",
		TileServerURL: "https://tiles.example", Datetime: dt,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if o.Item.ID != "custom" || o.Item.Collection != "other" {
		t.Fatalf("item=%s/%s", o.Item.Collection, o.Item.ID)
	}
	if o.Item.Properties.Datetime != "2020-02-03T04:05:06Z" {
		t.Fatalf("datetime=%s", o.Item.Properties.Datetime)
	}
	if _, ok := o.Item.Assets["tiles"]; !ok {
		t.Fatalf("tile server given but no tiles asset")
	}
}

func TestProcess_ErrorKindsPropagate(t *testing.T) {
	em := &recorder{}
	p := newProcessor(t, t.TempDir(), em)

	corrupt := writeScene(t, "corrupt.tif", []byte("definitely not a tiff"))
	if _, err := p.Process(context.Background(), Request{SourceRef: corrupt}); errkind.Kind(err) != "UnreadableImageError" {
		t.Fatalf("corrupt: got %v", err)
	}

	undated := writeScene(t, "undated.tif", rastertest.GeoTIFF(rastertest.GeographicScene()))
	if _, err := p.Process(context.Background(), Request{SourceRef: undated}); errkind.Kind(err) != "MissingTemporalMetadataError" {
		t.Fatalf("undated: got %v", err)
	}
	if len(em.keys) != 0 {
		t.Fatalf("failed items must not be emitted: %v", em.keys)
	}
}
