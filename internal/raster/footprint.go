package raster

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/mohammed-shakir/raster-intake/internal/errkind"
)

// MinFootprintArea rejects sliver polygons, in square degrees.
const MinFootprintArea = 1e-12

// Footprint projects the four image corners (0,0),(w,0),(w,h),(0,h) into WGS84 and
// returns the closed counter-clockwise ring together with its bounding box.
func Footprint(gt GeoTransform, proj Projection, width, height int) (orb.Ring, orb.Bound, error) {
	w, h := float64(width), float64(height)
	corners := [4][2]float64{{0, 0}, {w, 0}, {w, h}, {0, h}}

	ring := make(orb.Ring, 0, 5)
	for _, c := range corners {
		x, y := gt.Apply(c[0], c[1])
		lon, lat, err := proj.ToWGS84(x, y)
		if err != nil {
			return nil, orb.Bound{}, err
		}
		ring = append(ring, orb.Point{lon, lat})
	}
	ring = append(ring, ring[0])

	if ring.Orientation() == orb.CW {
		ring.Reverse()
	}
	return ring, ring.Bound(), nil
}

// ValidateRing checks the footprint invariants: closed, at least a triangle, not a
// sliver and not self-intersecting.
func ValidateRing(r orb.Ring) error {
	if len(r) < 4 {
		return errkind.InvalidGeometry.New("ring has %d vertices, need at least 4", len(r))
	}
	if !r.Closed() {
		return errkind.InvalidGeometry.New("ring is not closed")
	}
	for _, p := range r {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return errkind.InvalidGeometry.New("ring has non-finite vertex %v", p)
		}
	}
	if a := math.Abs(planar.Area(r)); a <= MinFootprintArea {
		return errkind.InvalidGeometry.New("ring area %g below minimum", a)
	}
	if selfIntersects(r) {
		return errkind.InvalidGeometry.New("ring self-intersects")
	}
	return nil
}

// selfIntersects tests every pair of non-adjacent edges.
func selfIntersects(r orb.Ring) bool {
	n := len(r) - 1 // edges
	for i := range n {
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsIntersect(r[i], r[i+1], r[j], r[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}
