package raster

import (
	"math"

	"github.com/mohammed-shakir/raster-intake/internal/errkind"
)

// Projection maps native CRS coordinates to WGS84 longitude/latitude in degrees.
type Projection interface {
	EPSG() int
	ToWGS84(x, y float64) (lon, lat float64, err error)
}

// WGS84 ellipsoid
const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563

	utmK0        = 0.9996
	utmFalseEast = 500000.0
	utmFalseSth  = 10000000.0
)

// ProjectionFor returns the inverse projection for a supported EPSG code.
func ProjectionFor(code int) (Projection, error) {
	switch {
	case code == 4326:
		return geographic{}, nil
	case code == 3857 || code == 900913 || code == 3785:
		return webMercator{code: code}, nil
	case code >= 32601 && code <= 32660:
		return newUTM(code, code-32600, false), nil
	case code >= 32701 && code <= 32760:
		return newUTM(code, code-32700, true), nil
	}
	return nil, errkind.MissingProjection.New("EPSG:%d has no transform to WGS84", code)
}

type geographic struct{}

func (geographic) EPSG() int { return 4326 }

func (geographic) ToWGS84(x, y float64) (float64, float64, error) {
	if math.Abs(y) > 90 || math.Abs(x) > 540 {
		return 0, 0, errkind.InvalidGeometry.New("coordinate (%g, %g) out of geographic range", x, y)
	}
	return x, y, nil
}

type webMercator struct{ code int }

func (w webMercator) EPSG() int { return w.code }

func (webMercator) ToWGS84(x, y float64) (float64, float64, error) {
	lon := x / wgs84A * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/wgs84A)) - math.Pi/2) * 180 / math.Pi
	return lon, lat, nil
}

type utm struct {
	code  int
	lon0  float64
	south bool

	e2, ep2, e1 float64
}

func newUTM(code, zone int, south bool) utm {
	e2 := wgs84F * (2 - wgs84F)
	s := math.Sqrt(1 - e2)
	return utm{
		code:  code,
		lon0:  float64((zone-1)*6-180+3) * math.Pi / 180,
		south: south,
		e2:    e2,
		ep2:   e2 / (1 - e2),
		e1:    (1 - s) / (1 + s),
	}
}

func (u utm) EPSG() int { return u.code }

// ToWGS84 is the inverse transverse Mercator series (Snyder, USGS PP 1395, eq. 8-12..8-18).
func (u utm) ToWGS84(easting, northing float64) (float64, float64, error) {
	x := easting - utmFalseEast
	y := northing
	if u.south {
		y -= utmFalseSth
	}

	e2, e1, ep2 := u.e2, u.e1, u.ep2
	m := y / utmK0
	mu := m / (wgs84A * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))

	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sin, cos, tan := math.Sin(phi1), math.Cos(phi1), math.Tan(phi1)
	c1 := ep2 * cos * cos
	t1 := tan * tan
	w := 1 - e2*sin*sin
	n1 := wgs84A / math.Sqrt(w)
	r1 := wgs84A * (1 - e2) / math.Pow(w, 1.5)
	d := x / (n1 * utmK0)

	lat := phi1 - (n1*tan/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
	lon := u.lon0 + (d-
		(1+2*t1+c1)*math.Pow(d, 3)/6+
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120)/cos

	latDeg, lonDeg := lat*180/math.Pi, lon*180/math.Pi
	if math.IsNaN(latDeg) || math.IsNaN(lonDeg) || math.Abs(latDeg) > 90 {
		return 0, 0, errkind.InvalidGeometry.New("utm (%g, %g) outside projection domain", easting, northing)
	}
	return lonDeg, latDeg, nil
}
