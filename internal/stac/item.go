// Package stac assembles and validates STAC 1.0.0 catalog items.
package stac

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/raster-intake/internal/errkind"
)

const (
	Version = "1.0.0"

	ProjectionExtension = "https://stac-extensions.github.io/projection/v1.1.0/schema.json"

	MediaGeoJSON = "application/geo+json"
	MediaJSON    = "application/json"
	MediaGeoTIFF = "image/tiff; application=geotiff"
	MediaPNG     = "image/png"
)

type Item struct {
	Type           string            `json:"type"`
	StacVersion    string            `json:"stac_version"`
	StacExtensions []string          `json:"stac_extensions"`
	ID             string            `json:"id"`
	Collection     string            `json:"collection"`
	Geometry       *geojson.Geometry `json:"geometry"`
	BBox           []float64         `json:"bbox"`
	Properties     Properties        `json:"properties"`
	Assets         map[string]Asset  `json:"assets"`
	Links          []Link            `json:"links"`
}

type Properties struct {
	Datetime      string `json:"datetime"`
	StartDatetime string `json:"start_datetime,omitempty"`
	EndDatetime   string `json:"end_datetime,omitempty"`
	Updated       string `json:"updated,omitempty"`
	Description   string `json:"description,omitempty"`

	ProjEPSG      int       `json:"proj:epsg,omitempty"`
	ProjShape     []int     `json:"proj:shape,omitempty"`
	ProjTransform []float64 `json:"proj:transform,omitempty"`

	H3Cells      []string `json:"h3:cells,omitempty"`
	H3Resolution *int     `json:"h3:resolution,omitempty"`
}

type Asset struct {
	Href  string   `json:"href"`
	Type  string   `json:"type,omitempty"`
	Title string   `json:"title,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

type Link struct {
	Rel   string `json:"rel"`
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// Key is the catalog upsert key.
func (it Item) Key() string { return it.Collection + "/" + it.ID }

// Footprint returns the exterior ring, or nil when the geometry is not a polygon.
func (it Item) Footprint() orb.Ring {
	if it.Geometry == nil {
		return nil
	}
	poly, ok := it.Geometry.Geometry().(orb.Polygon)
	if !ok || len(poly) == 0 {
		return nil
	}
	return poly[0]
}

// AssetKey is the storage key convention for derived files.
func AssetKey(collection, item, file string) string {
	return collection + "/" + item + "/" + file
}

// Decode parses and validates a delivered item.
func Decode(data []byte) (Item, error) {
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return Item{}, errkind.Validation.New("decode item: %v", err)
	}
	if err := Validate(it); err != nil {
		return Item{}, err
	}
	return it, nil
}

// Validate checks the structural invariants every catalog item must satisfy.
func Validate(it Item) error {
	switch {
	case it.Type != "Feature":
		return errkind.Validation.New("type %q, want Feature", it.Type)
	case it.StacVersion != Version:
		return errkind.Validation.New("stac_version %q, want %s", it.StacVersion, Version)
	case it.ID == "":
		return errkind.Validation.New("missing id")
	case it.Collection == "":
		return errkind.Validation.New("item %s: missing collection", it.ID)
	case it.Geometry == nil || it.Geometry.Type != "Polygon":
		return errkind.Validation.New("item %s: geometry must be a Polygon", it.ID)
	}

	ring := it.Footprint()
	if len(ring) < 4 || !ring.Closed() {
		return errkind.Validation.New("item %s: polygon exterior ring must be closed with >= 4 positions", it.ID)
	}
	if err := validateBBox(it.BBox); err != nil {
		return errkind.Validation.New("item %s: %v", it.ID, err)
	}
	p := it.Properties
	if p.Datetime == "" && (p.StartDatetime == "" || p.EndDatetime == "") {
		return errkind.Validation.New("item %s: datetime or start/end datetime required", it.ID)
	}
	for _, f := range []struct{ name, v string }{
		{"datetime", p.Datetime},
		{"start_datetime", p.StartDatetime},
		{"end_datetime", p.EndDatetime},
	} {
		if f.v == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339Nano, f.v); err != nil {
			return errkind.Validation.New("item %s: %s %q is not RFC 3339", it.ID, f.name, f.v)
		}
	}
	for name, a := range it.Assets {
		if a.Href == "" {
			return errkind.Validation.New("item %s: asset %q has no href", it.ID, name)
		}
	}
	for _, l := range it.Links {
		if l.Rel == "" || l.Href == "" {
			return errkind.Validation.New("item %s: link needs rel and href", it.ID)
		}
	}
	return nil
}

func validateBBox(b []float64) error {
	if len(b) != 4 {
		return errors.New("bbox must have 4 numbers")
	}
	for _, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("bbox has non-finite value")
		}
	}
	if b[0] > b[2] || b[1] > b[3] {
		return errors.New("bbox min exceeds max")
	}
	return nil
}
