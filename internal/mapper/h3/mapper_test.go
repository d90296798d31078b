package h3mapper

import (
	"reflect"
	"sort"
	"testing"

	"github.com/paulmach/orb"
)

var stockholm = orb.Ring{{18.00, 59.32}, {18.12, 59.32}, {18.12, 59.38}, {18.00, 59.38}, {18.00, 59.32}}

func TestRing_SortedUniqueAndDeterministic(t *testing.T) {
	m := New()

	cells, err := m.CellsForRing(stockholm, 9)
	if err != nil {
		t.Fatalf("CellsForRing: %v", err)
	}
	if len(cells) == 0 {
		t.Fatalf("expected non-empty coverage")
	}
	if !sort.StringsAreSorted(cells) || hasDups(cells) {
		t.Fatalf("cells must be sorted + unique")
	}
	again, _ := m.CellsForRing(stockholm, 9)
	if !reflect.DeepEqual(cells, again) {
		t.Fatalf("expected identical output for identical input")
	}

	bb, err := m.CellsForBound(stockholm.Bound().Pad(0.05), 9)
	if err != nil {
		t.Fatalf("CellsForBound: %v", err)
	}
	if len(cells) > len(bb) {
		t.Fatalf("ring coverage larger than padded bound coverage")
	}
}

func TestCover_CoarsensToMaxCells(t *testing.T) {
	m := New()
	cells, res, err := m.Cover(stockholm, 9, 10)
	if err != nil {
		t.Fatalf("Cover: %v", err)
	}
	if len(cells) > 10 {
		t.Fatalf("cells=%d want <= 10", len(cells))
	}
	if res >= 9 {
		t.Fatalf("expected coarser resolution, got %d", res)
	}
	for _, c := range cells {
		r, err := m.Resolution(c)
		if err != nil || r != res {
			t.Fatalf("cell %s res=%d err=%v want %d", c, r, err, res)
		}
	}
}

func TestCover_TinyFootprintStillIndexed(t *testing.T) {
	m := New()
	tiny := orb.Ring{{18.0, 59.3}, {18.0001, 59.3}, {18.0001, 59.3001}, {18.0, 59.3001}, {18.0, 59.3}}
	cells, res, err := m.Cover(tiny, 4, 0)
	if err != nil {
		t.Fatalf("Cover: %v", err)
	}
	if len(cells) == 0 || res != 4 {
		t.Fatalf("cells=%v res=%d", cells, res)
	}
}

func TestBounds_InvalidResolutionAndDegenerateRing(t *testing.T) {
	m := New()
	if _, err := m.CellsForRing(stockholm, -1); err == nil {
		t.Fatalf("expected error for res=-1")
	}
	if _, err := m.CellsForBound(stockholm.Bound(), 16); err == nil {
		t.Fatalf("expected error for res=16")
	}
	if _, err := m.CellsForRing(orb.Ring{{1, 1}, {1, 1}}, 8); err == nil {
		t.Fatalf("expected error for degenerate ring")
	}
}

func hasDups(s []string) bool {
	seen := map[string]struct{}{}
	for _, v := range s {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}
