package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/raster-intake/internal/catalog/keys"
	"github.com/mohammed-shakir/raster-intake/internal/catalog/redisstore"
	"github.com/mohammed-shakir/raster-intake/internal/errkind"
	h3mapper "github.com/mohammed-shakir/raster-intake/internal/mapper/h3"
	"github.com/mohammed-shakir/raster-intake/internal/publish"
	"github.com/mohammed-shakir/raster-intake/internal/stac"
	"github.com/mohammed-shakir/raster-intake/internal/stream"
)

func newStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cli, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	return NewRedisStore(cli, nil), mr
}

func itemJSON(id, desc string, cells ...string) []byte {
	quoted := make([]string, len(cells))
	for i, c := range cells {
		quoted[i] = `"` + c + `"`
	}
	return []byte(fmt.Sprintf(`{"type":"Feature","stac_version":"1.0.0","stac_extensions":[],"id":%q,"collection":"OSML",`+
		`"geometry":{"type":"Polygon","coordinates":[[[18,59],[18.1,59],[18.1,59.1],[18,59.1],[18,59]]]},`+
		`"bbox":[18,59,18.1,59.1],"properties":{"datetime":"2024-05-01T10:30:00Z","description":%q,"h3:cells":[%s]},`+
		`"assets":{},"links":[]}`, id, desc, strings.Join(quoted, ",")))
}

func message(body []byte, ts int64) stream.Message {
	return stream.Message{
		Topic:   "items",
		Value:   body,
		Headers: map[string]string{publish.HeaderLogicalTS: fmt.Sprint(ts)},
	}
}

func storedBody(t *testing.T, s *RedisStore, id string) string {
	t.Helper()
	rec, err := s.GetItem(context.Background(), "OSML", id)
	if err != nil {
		t.Fatalf("GetItem(%s): %v", id, err)
	}
	return string(rec.Body)
}

func TestPutItem_Results(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	body := itemJSON("a", "v1")
	rec := Record{Collection: "OSML", ID: "a", Body: body, LogicalTS: 100}

	steps := []struct {
		name string
		rec  Record
		want PutResult
	}{
		{"insert", rec, Inserted},
		{"same bytes", rec, Unchanged},
		{"same bytes newer ts", Record{Collection: "OSML", ID: "a", Body: body, LogicalTS: 500}, Unchanged},
		{"older", Record{Collection: "OSML", ID: "a", Body: itemJSON("a", "v0"), LogicalTS: 50}, Stale},
		{"newer", Record{Collection: "OSML", ID: "a", Body: itemJSON("a", "v2"), LogicalTS: 200}, Updated},
	}
	for _, st := range steps {
		got, err := s.PutItem(ctx, st.rec)
		if err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if got != st.want {
			t.Fatalf("%s: got %s want %s", st.name, got, st.want)
		}
	}
	if got := storedBody(t, s, "a"); got != string(itemJSON("a", "v2")) {
		t.Fatalf("stored body=%s", got)
	}

	if _, err := s.PutItem(ctx, Record{ID: "x"}); !errkind.Validation.Has(err) {
		t.Fatalf("missing collection: want Validation, got %v", err)
	}
}

func TestPutItem_TieBreakConverges(t *testing.T) {
	a := itemJSON("t", "alpha")
	b := itemJSON("t", "beta")
	winner := a
	if keys.Fingerprint(b) > keys.Fingerprint(a) {
		winner = b
	}

	for _, order := range [][][]byte{{a, b}, {b, a}} {
		s, _ := newStore(t)
		for _, body := range order {
			if _, err := s.PutItem(context.Background(), Record{Collection: "OSML", ID: "t", Body: body, LogicalTS: 42}); err != nil {
				t.Fatalf("PutItem: %v", err)
			}
		}
		if got := storedBody(t, s, "t"); got != string(winner) {
			t.Fatalf("replicas diverge: got %s want %s", got, winner)
		}
	}
}

func TestCellIndexFollowsUpdates(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	put := func(id string, ts int64, cells ...string) {
		t.Helper()
		if _, err := s.PutItem(ctx, Record{Collection: "OSML", ID: id, Body: itemJSON(id, fmt.Sprint(ts)), LogicalTS: ts, Cells: cells}); err != nil {
			t.Fatalf("PutItem: %v", err)
		}
	}
	put("a", 1, "861f05a37ffffff", "861f05a27ffffff")
	put("b", 1, "861F05A37FFFFFF")

	ids, err := s.ItemsForCell(ctx, "OSML", "861f05a37ffffff")
	if err != nil || strings.Join(ids, ",") != "a,b" {
		t.Fatalf("cell ids=%v err=%v", ids, err)
	}

	put("a", 2, "861f05a07ffffff")
	if ids, _ := s.ItemsForCell(ctx, "OSML", "861f05a37ffffff"); strings.Join(ids, ",") != "b" {
		t.Fatalf("old cell still lists a: %v", ids)
	}
	if ids, _ := s.ItemsForCell(ctx, "OSML", "861f05a07ffffff"); strings.Join(ids, ",") != "a" {
		t.Fatalf("new cell=%v", ids)
	}
	rec, err := s.GetItem(ctx, "OSML", "a")
	if err != nil || len(rec.Cells) != 1 || rec.LogicalTS != 2 {
		t.Fatalf("rec=%+v err=%v", rec, err)
	}
}

func TestItemsForCell_CoarseIndexMatchesFinerQuery(t *testing.T) {
	s, _ := newStore(t)
	s.WithHierarchy(h3mapper.New())
	ctx := context.Background()

	fine, err := h3.LatLngToCell(h3.LatLng{Lat: 59.33, Lng: 18.07}, 8)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	coarse, _ := fine.Parent(5)

	if _, err := s.PutItem(ctx, Record{Collection: "OSML", ID: "wide", Body: itemJSON("wide", ""), LogicalTS: 1, Cells: []string{coarse.String()}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PutItem(ctx, Record{Collection: "OSML", ID: "local", Body: itemJSON("local", ""), LogicalTS: 1, Cells: []string{fine.String()}}); err != nil {
		t.Fatal(err)
	}

	ids, err := s.ItemsForCell(ctx, "OSML", fine.String())
	if err != nil || strings.Join(ids, ",") != "local,wide" {
		t.Fatalf("fine query=%v err=%v", ids, err)
	}
	ids, _ = s.ItemsForCell(ctx, "OSML", coarse.String())
	if strings.Join(ids, ",") != "wide" {
		t.Fatalf("coarse query=%v", ids)
	}
	if _, err := s.ItemsForCell(ctx, "OSML", "bogus"); !errkind.Validation.Has(err) {
		t.Fatalf("want Validation, got %v", err)
	}
}

func TestListItemsAndNotFound(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		if _, err := s.PutItem(ctx, Record{Collection: "OSML", ID: id, Body: itemJSON(id, ""), LogicalTS: 1}); err != nil {
			t.Fatal(err)
		}
	}
	recs, err := s.ListItems(ctx, "OSML")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(recs) != 3 || recs[0].ID != "a" || recs[2].ID != "c" {
		t.Fatalf("recs=%+v", recs)
	}
	if string(recs[1].Body) != string(itemJSON("b", "")) {
		t.Fatalf("body=%s", recs[1].Body)
	}

	if _, err := s.GetItem(ctx, "OSML", "zzz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if empty, err := s.ListItems(ctx, "other"); err != nil || len(empty) != 0 {
		t.Fatalf("empty collection=%v err=%v", empty, err)
	}
}

func TestPutItem_CollectionsWithSimilarIDsStaySeparate(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	colls := []string{"sat/a", "sat-a", "sat:a"}
	for i, c := range colls {
		body := itemJSON("x", c)
		got, err := s.PutItem(ctx, Record{Collection: c, ID: "x", Body: body, LogicalTS: int64(10 - i), Cells: []string{"861f05a37ffffff"}})
		if err != nil {
			t.Fatalf("PutItem(%s): %v", c, err)
		}
		if got != Inserted {
			t.Fatalf("PutItem(%s)=%s, want inserted", c, got)
		}
	}
	for _, c := range colls {
		rec, err := s.GetItem(ctx, c, "x")
		if err != nil {
			t.Fatalf("GetItem(%s): %v", c, err)
		}
		if string(rec.Body) != string(itemJSON("x", c)) {
			t.Fatalf("%s holds another collection's body: %s", c, rec.Body)
		}
		recs, err := s.ListItems(ctx, c)
		if err != nil || len(recs) != 1 {
			t.Fatalf("ListItems(%s)=%v err=%v", c, recs, err)
		}
		ids, err := s.ItemsForCell(ctx, c, "861f05a37ffffff")
		if err != nil || len(ids) != 1 {
			t.Fatalf("ItemsForCell(%s)=%v err=%v", c, ids, err)
		}
	}
}

func TestEnsureCollection_Idempotent(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	first := stac.MinimalCollection("OSML", "https://catalog.example.com")
	if err := s.EnsureCollection(ctx, first); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	second := first
	second.Description = "changed"
	if err := s.EnsureCollection(ctx, second); err != nil {
		t.Fatalf("EnsureCollection again: %v", err)
	}
	got, err := s.Collection(ctx, "OSML")
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	if got.Description != first.Description {
		t.Fatalf("existing collection was overwritten: %q", got.Description)
	}
	if _, err := s.Collection(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := s.EnsureCollection(ctx, stac.Collection{}); !errkind.Validation.Has(err) {
		t.Fatalf("want Validation, got %v", err)
	}
}

func TestWriter_RedeliveryIsNoop(t *testing.T) {
	s, mr := newStore(t)
	w := NewWriter(s, WriterOptions{DedupeSize: 16})
	ctx := context.Background()
	msg := message(itemJSON("a", "v1", "861f05a37ffffff"), 10)

	if got := w.Consume(ctx, msg); got != stream.Ack {
		t.Fatalf("first=%s", got)
	}
	before := mr.CommandCount()
	if got := w.Consume(ctx, msg); got != stream.Ack {
		t.Fatalf("redelivery=%s", got)
	}
	if mr.CommandCount() != before {
		t.Fatalf("hot duplicate reached the store")
	}

	// a fresh writer has an empty cache; the store still treats it as unchanged
	w2 := NewWriter(s, WriterOptions{})
	if got := w2.Consume(ctx, msg); got != stream.Ack {
		t.Fatalf("cold redelivery=%s", got)
	}
	recs, _ := s.ListItems(ctx, "OSML")
	if len(recs) != 1 || string(recs[0].Body) != string(msg.Value) {
		t.Fatalf("recs=%+v", recs)
	}
}

func TestWriter_LastWriteWinsOutOfOrder(t *testing.T) {
	s, _ := newStore(t)
	w := NewWriter(s, WriterOptions{})
	ctx := context.Background()

	newer := message(itemJSON("a", "new"), 200)
	older := message(itemJSON("a", "old"), 100)
	for _, m := range []stream.Message{newer, older} {
		if got := w.Consume(ctx, m); got != stream.Ack {
			t.Fatalf("outcome=%s", got)
		}
	}
	if got := storedBody(t, s, "a"); got != string(newer.Value) {
		t.Fatalf("older delivery overwrote newer: %s", got)
	}
}

func TestWriter_InvalidPayloadDeadLetters(t *testing.T) {
	s, _ := newStore(t)
	w := NewWriter(s, WriterOptions{})

	cases := map[string][]byte{
		"not json":     []byte("{"),
		"no id":        itemJSON("", "x"),
		"open ring":    []byte(strings.Replace(string(itemJSON("a", "")), "[18,59]]]", "[18.05,59.05]]]", 1)),
		"bbox min>max": []byte(strings.Replace(string(itemJSON("a", "")), "[18,59,18.1,59.1]", "[18.1,59,18,59.1]", 1)),
	}
	for name, body := range cases {
		if got := w.Consume(context.Background(), message(body, 1)); got != stream.DeadLetter {
			t.Fatalf("%s: got %s want dead_letter", name, got)
		}
	}
}

func TestWriter_StoreDownRetries(t *testing.T) {
	s, mr := newStore(t)
	w := NewWriter(s, WriterOptions{StoreTimeout: 200 * time.Millisecond})
	mr.Close()

	if got := w.Consume(context.Background(), message(itemJSON("a", "v1"), 1)); got != stream.Retry {
		t.Fatalf("got %s want retry", got)
	}
}

func TestLogicalTimestamp_Precedence(t *testing.T) {
	it := stac.Item{Properties: stac.Properties{Updated: "2024-01-02T03:04:05Z"}}
	broker := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	if got := LogicalTimestamp(stream.Message{Headers: map[string]string{publish.HeaderLogicalTS: "77"}, Timestamp: broker}, it); got != 77 {
		t.Fatalf("header: %d", got)
	}
	if got := LogicalTimestamp(stream.Message{Headers: map[string]string{publish.HeaderLogicalTS: "junk"}, Timestamp: broker}, it); got != broker.UnixNano() {
		t.Fatalf("broker: %d", got)
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixNano()
	if got := LogicalTimestamp(stream.Message{}, it); got != want {
		t.Fatalf("updated: %d", got)
	}
	if got := LogicalTimestamp(stream.Message{}, stac.Item{}); got != 0 {
		t.Fatalf("none: %d", got)
	}
}

func TestPutResultString(t *testing.T) {
	for r, want := range map[PutResult]string{Inserted: "inserted", Updated: "updated", Unchanged: "unchanged", Stale: "stale", 9: "unknown"} {
		if r.String() != want {
			t.Fatalf("%d: %s", r, r.String())
		}
	}
}
