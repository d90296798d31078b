package h3mapper

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"
)

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

func (m *Mapper) CellsForBound(b orb.Bound, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	outer := h3.GeoLoop{
		{Lat: b.Min[1], Lng: b.Min[0]},
		{Lat: b.Min[1], Lng: b.Max[0]},
		{Lat: b.Max[1], Lng: b.Max[0]},
		{Lat: b.Max[1], Lng: b.Min[0]},
	}
	return polyfill(outer, res)
}

// CellsForRing returns the sorted cells whose centers fall inside ring.
func (m *Mapper) CellsForRing(ring orb.Ring, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	loop := toLoop(ring)
	if len(loop) < 3 {
		return nil, errors.New("ring has < 3 distinct vertices")
	}
	return polyfill(loop, res)
}

// Cover is CellsForRing made total: footprints smaller than one cell still map to
// the cells under their vertices, and results larger than maxCells are coarsened
// to parents until they fit.
func (m *Mapper) Cover(ring orb.Ring, res, maxCells int) ([]string, int, error) {
	cells, err := m.CellsForRing(ring, res)
	if err != nil {
		return nil, 0, err
	}
	if len(cells) == 0 {
		cells, err = vertexCells(ring, res)
		if err != nil {
			return nil, 0, err
		}
	}
	for maxCells > 0 && len(cells) > maxCells && res > 0 {
		res--
		cells, err = m.parents(cells, res)
		if err != nil {
			return nil, 0, err
		}
	}
	return cells, res, nil
}

func (m *Mapper) parents(cells []string, res int) ([]string, error) {
	seen := make(map[string]struct{}, len(cells))
	out := make([]string, 0, len(cells)/7+1)
	for _, c := range cells {
		p, err := m.ToParent(c, res)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// --- helpers ---

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// toLoop converts a lon/lat ring to an h3.GeoLoop in degrees, dropping the
// closing vertex.
func toLoop(ring orb.Ring) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(ring))
	for _, p := range ring {
		loop = append(loop, h3.LatLng{Lat: p[1], Lng: p[0]})
	}
	if len(loop) >= 2 && loop[0] == loop[len(loop)-1] {
		loop = loop[:len(loop)-1]
	}
	return loop
}

func vertexCells(ring orb.Ring, res int) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range ring {
		c, err := h3.LatLngToCell(h3.LatLng{Lat: p[1], Lng: p[0]}, res)
		if err != nil {
			return nil, fmt.Errorf("h3 cell for vertex: %w", err)
		}
		s := c.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// polyfill computes unique cells and returns them sorted for determinism.
func polyfill(outer h3.GeoLoop, res int) ([]string, error) {
	indexes, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	out := make([]string, 0, len(indexes))
	seen := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		s := idx.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
