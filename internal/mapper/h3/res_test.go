package h3mapper

import (
	"strings"
	"testing"

	h3 "github.com/uber/h3-go/v4"
)

func TestToParent(t *testing.T) {
	m := New()
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: 59.3293, Lng: 18.0686}, 8)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}

	p, err := m.ToParent(cell.String(), 7)
	if err != nil {
		t.Fatalf("ToParent: %v", err)
	}
	want, _ := cell.Parent(7)
	if p != want.String() {
		t.Fatalf("parent=%s want %s", p, want)
	}
	if same, _ := m.ToParent(strings.ToUpper(cell.String()), 8); same != cell.String() {
		t.Fatalf("same-res parent=%s", same)
	}
	if _, err := m.ToParent(cell.String(), 9); err == nil {
		t.Fatalf("expected error for parentRes > current res")
	}
}

func TestAncestors(t *testing.T) {
	m := New()
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: 55.6050, Lng: 13.0038}, 7)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}

	got, err := m.Ancestors(cell.String(), 4)
	if err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	if len(got) != 4 || got[0] != cell.String() {
		t.Fatalf("ancestors=%v", got)
	}
	for i, s := range got {
		if r, _ := m.Resolution(s); r != 7-i {
			t.Fatalf("ancestor %d has res %d", i, r)
		}
	}

	only, err := m.Ancestors(cell.String(), 9)
	if err != nil || len(only) != 1 {
		t.Fatalf("minRes above cell res: %v err=%v", only, err)
	}
	if _, err := m.Ancestors("not-a-cell", 0); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestResolution_ParsesCell(t *testing.T) {
	m := New()
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: 42.0, Lng: 15.0}, 6)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	if r, err := m.Resolution(cell.String()); err != nil || r != 6 {
		t.Fatalf("res=%d err=%v", r, err)
	}
	if _, err := m.Resolution("not-a-cell"); err == nil {
		t.Fatalf("expected parse error")
	}
}
