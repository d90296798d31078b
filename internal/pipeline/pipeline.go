// Package pipeline runs the single-item intake path: extract, build, publish.
package pipeline

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/raster-intake/internal/core/observability"
	"github.com/mohammed-shakir/raster-intake/internal/logger"
	"github.com/mohammed-shakir/raster-intake/internal/publish"
	"github.com/mohammed-shakir/raster-intake/internal/raster"
	"github.com/mohammed-shakir/raster-intake/internal/stac"
)

// stages, also the label values of the stage latency histogram
const (
	StageExtract = "extract"
	StageBuild   = "build"
	StagePublish = "publish"
)

// itemNamespace scopes item ids derived from source references.
var itemNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("raster-intake/items"))

// ItemID derives a stable id from the source reference so retries and re-runs
// upsert the same catalog record.
func ItemID(ref string) string {
	return uuid.NewSHA1(itemNamespace, []byte(strings.TrimSpace(ref))).String()
}

type Extractor interface {
	Extract(ctx context.Context, ref string) (raster.Metadata, []raster.Artifact, error)
}

type Builder interface {
	Build(md raster.Metadata, in stac.BuildInput) (stac.Item, error)
}

type Publisher interface {
	Publish(ctx context.Context, it stac.Item, artifacts []raster.Artifact) (publish.Result, error)
}

type Request struct {
	SourceRef     string
	ItemID        string // derived from SourceRef when empty
	CollectionID  string // Defaults.CollectionID when empty
	TileServerURL string // Defaults.TileServerURL when empty
	Datetime      time.Time
}

type Defaults struct {
	CollectionID  string
	TileServerURL string
}

type Outcome struct {
	Item    stac.Item
	Publish publish.Result
}

type Processor struct {
	extract  Extractor
	build    Builder
	publish  Publisher
	defaults Defaults
	log      *slog.Logger
}

func NewProcessor(e Extractor, b Builder, p Publisher, d Defaults, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{extract: e, build: b, publish: p, defaults: d, log: log}
}

func (p *Processor) resolve(req Request) Request {
	if req.ItemID == "" {
		req.ItemID = ItemID(req.SourceRef)
	}
	if req.CollectionID == "" {
		req.CollectionID = p.defaults.CollectionID
	}
	if req.TileServerURL == "" {
		req.TileServerURL = p.defaults.TileServerURL
	}
	return req
}

// Process runs one attempt. Errors keep their errkind class so callers can decide
// whether to retry.
func (p *Processor) Process(ctx context.Context, req Request) (Outcome, error) {
	req = p.resolve(req)
	ctx = logger.WithItemID(ctx, req.ItemID)

	start := time.Now()
	md, artifacts, err := p.extract.Extract(ctx, req.SourceRef)
	observability.ObserveStage(StageExtract, err, time.Since(start).Seconds())
	if err != nil {
		return Outcome{}, err
	}

	start = time.Now()
	it, err := p.build.Build(md, stac.BuildInput{
		ItemID:        req.ItemID,
		CollectionID:  req.CollectionID,
		Datetime:      req.Datetime,
		TileServerURL: req.TileServerURL,
		SourceHref:    req.SourceRef,
		Artifacts:     artifacts,
	})
	observability.ObserveStage(StageBuild, err, time.Since(start).Seconds())
	if err != nil {
		return Outcome{}, err
	}

	start = time.Now()
	res, err := p.publish.Publish(ctx, it, artifacts)
	observability.ObserveStage(StagePublish, err, time.Since(start).Seconds())
	if err != nil {
		return Outcome{}, err
	}

	p.log.InfoContext(ctx, "item processed",
		"source", path.Base(req.SourceRef),
		"collection", it.Collection,
		"artifacts", len(artifacts),
	)
	return Outcome{Item: it, Publish: res}, nil
}
