package stac

import (
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/raster-intake/internal/errkind"
	"github.com/mohammed-shakir/raster-intake/internal/mapper"
	"github.com/mohammed-shakir/raster-intake/internal/raster"
)

type Config struct {
	CatalogURL string
	// AssetBaseURL prefixes artifact keys, e.g. s3://out-bucket/stac
	AssetBaseURL       string
	DefaultDatetimeNow bool
	H3Res              int
	H3MaxCells         int
}

type BuildInput struct {
	ItemID        string
	CollectionID  string
	Datetime      time.Time // explicit override, zero when unset
	TileServerURL string
	SourceHref    string
	Artifacts     []raster.Artifact
}

type Builder struct {
	cfg   Config
	cells mapper.Interface
	now   func() time.Time
}

// NewBuilder takes an optional cell mapper; without one items carry no h3:cells.
func NewBuilder(cfg Config, cells mapper.Interface) *Builder {
	cfg.CatalogURL = strings.TrimRight(cfg.CatalogURL, "/")
	cfg.AssetBaseURL = strings.TrimRight(cfg.AssetBaseURL, "/")
	return &Builder{cfg: cfg, cells: cells, now: time.Now}
}

// WithClock replaces the clock used by the default-datetime policy.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	cp := *b
	cp.now = now
	return &cp
}

// Build is deterministic for identical inputs unless the default-datetime policy
// has to fall back to the clock.
func (b *Builder) Build(md raster.Metadata, in BuildInput) (Item, error) {
	if in.ItemID == "" || in.CollectionID == "" {
		return Item{}, errkind.Validation.New("item id and collection id are required")
	}
	if err := raster.ValidateRing(md.Footprint); err != nil {
		return Item{}, err
	}

	dt, err := b.resolveDatetime(md, in)
	if err != nil {
		return Item{}, err
	}

	props := Properties{
		Datetime:      dt.UTC().Format(time.RFC3339Nano),
		Description:   "STAC Item for image " + in.SourceHref,
		ProjEPSG:      md.EPSG,
		ProjShape:     []int{md.Height, md.Width},
		ProjTransform: md.Transform.Affine(),
	}
	if b.cells != nil {
		cells, res, err := b.cells.Cover(md.Footprint, b.cfg.H3Res, b.cfg.H3MaxCells)
		if err != nil {
			return Item{}, errkind.InvalidGeometry.Wrap(err)
		}
		props.H3Cells = cells
		props.H3Resolution = &res
	}

	ring := append(orb.Ring(nil), md.Footprint...)
	it := Item{
		Type:           "Feature",
		StacVersion:    Version,
		StacExtensions: []string{ProjectionExtension},
		ID:             in.ItemID,
		Collection:     in.CollectionID,
		Geometry:       geojson.NewGeometry(orb.Polygon{ring}),
		BBox:           []float64{md.BBox.Min[0], md.BBox.Min[1], md.BBox.Max[0], md.BBox.Max[1]},
		Properties:     props,
		Assets:         b.assets(in),
		Links:          b.links(in),
	}
	if err := Validate(it); err != nil {
		return Item{}, err
	}
	return it, nil
}

func (b *Builder) resolveDatetime(md raster.Metadata, in BuildInput) (time.Time, error) {
	switch {
	case !in.Datetime.IsZero():
		return in.Datetime, nil
	case !md.Acquired.IsZero():
		return md.Acquired, nil
	case b.cfg.DefaultDatetimeNow:
		return b.now(), nil
	}
	return time.Time{}, errkind.MissingTemporalMetadata.New("item %s: no datetime override or acquisition time", in.ItemID)
}

func (b *Builder) assets(in BuildInput) map[string]Asset {
	out := map[string]Asset{}
	if in.SourceHref != "" {
		out["source"] = Asset{Href: in.SourceHref, Type: MediaGeoTIFF, Title: "Source Image", Roles: []string{"data"}}
	}
	for _, a := range in.Artifacts {
		out[a.Name] = Asset{
			Href:  b.cfg.AssetBaseURL + "/" + AssetKey(in.CollectionID, in.ItemID, a.File),
			Type:  a.MediaType,
			Title: a.Title,
			Roles: a.Roles,
		}
	}
	if ts := strings.TrimRight(in.TileServerURL, "/"); ts != "" {
		base := ts + "/latest/collections/" + in.CollectionID + "/items/" + in.ItemID
		out["tiles"] = Asset{Href: base + "/tiles/{z}/{x}/{y}.png", Type: MediaPNG, Title: "Map tiles", Roles: []string{"tiles"}}
		out["thumbnail"] = Asset{Href: base + "/preview.png", Type: MediaPNG, Title: "Thumbnail", Roles: []string{"thumbnail"}}
	}
	return out
}

func (b *Builder) links(in BuildInput) []Link {
	col := b.cfg.CatalogURL + "/collections/" + in.CollectionID
	links := []Link{
		{Rel: "self", Href: col + "/items/" + in.ItemID, Type: MediaGeoJSON},
		{Rel: "root", Href: b.cfg.CatalogURL + "/", Type: MediaJSON},
		{Rel: "collection", Href: col, Type: MediaJSON},
	}
	if ts := strings.TrimRight(in.TileServerURL, "/"); ts != "" {
		links = append(links, Link{
			Rel:  "preview",
			Href: ts + "/latest/collections/" + in.CollectionID + "/items/" + in.ItemID + "/preview.png",
			Type: MediaPNG,
		})
	}
	return links
}
