package raster

import (
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/raster-intake/internal/errkind"
)

// tiffDateLayout is the TIFF 6.0 DateTime format "YYYY:MM:DD HH:MM:SS".
const tiffDateLayout = "2006:01:02 15:04:05"

// Metadata is what the catalog item is built from. It is never mutated after Describe.
type Metadata struct {
	Width     int
	Height    int
	Bands     int
	EPSG      int
	Transform GeoTransform
	Acquired  time.Time // zero when the image carries no DateTime tag
	Footprint orb.Ring
	BBox      orb.Bound
}

// Describe georeferences a parsed header. crsOverride is used only when the
// GeoKeys do not name a CRS.
func Describe(h Header, crsOverride int) (Metadata, error) {
	code := h.EPSG()
	if code == 0 {
		code = crsOverride
	}
	if code == 0 {
		return Metadata{}, errkind.MissingProjection.New("no CRS in GeoKeys and no override")
	}
	proj, err := ProjectionFor(code)
	if err != nil {
		return Metadata{}, err
	}
	gt, err := GeoTransformFromHeader(h)
	if err != nil {
		return Metadata{}, err
	}
	ring, bound, err := Footprint(gt, proj, h.Width, h.Height)
	if err != nil {
		return Metadata{}, err
	}

	return Metadata{
		Width:     h.Width,
		Height:    h.Height,
		Bands:     h.SamplesPerPixel,
		EPSG:      code,
		Transform: gt,
		Acquired:  parseTIFFDate(h.DateTime),
		Footprint: ring,
		BBox:      bound,
	}, nil
}

// TIFF DateTime has no zone; it is read as UTC. Unparseable values count as absent.
func parseTIFFDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{tiffDateLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Artifact is a derived file produced alongside extraction and published next to
// the item.
type Artifact struct {
	Name      string // asset key, e.g. "preview"
	File      string // object name under the item prefix, e.g. "preview.png"
	MediaType string
	Title     string
	Roles     []string
	Data      []byte
}
