package stac

import "strings"

type Collection struct {
	Type        string `json:"type"`
	StacVersion string `json:"stac_version"`
	ID          string `json:"id"`
	Description string `json:"description"`
	License     string `json:"license"`
	Extent      Extent `json:"extent"`
	Links       []Link `json:"links"`
}

type Extent struct {
	Spatial struct {
		BBox [][]float64 `json:"bbox"`
	} `json:"spatial"`
	Temporal struct {
		Interval [][]*string `json:"interval"`
	} `json:"temporal"`
}

// MinimalCollection is created on demand when a job targets an unknown collection.
func MinimalCollection(id, catalogURL string) Collection {
	c := Collection{
		Type:        "Collection",
		StacVersion: Version,
		ID:          id,
		Description: id + " STAC Collection",
		License:     "proprietary",
		Links: []Link{{
			Rel:  "self",
			Href: strings.TrimRight(catalogURL, "/") + "/collections/" + id,
			Type: MediaJSON,
		}},
	}
	c.Extent.Spatial.BBox = [][]float64{{-180, -90, 180, 90}}
	c.Extent.Temporal.Interval = [][]*string{{nil, nil}}
	return c
}
