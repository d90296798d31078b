// Package extract turns a raster reference into georeferenced metadata and optional
// preview/statistics artifacts.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/image/tiff"

	"github.com/mohammed-shakir/raster-intake/internal/errkind"
	"github.com/mohammed-shakir/raster-intake/internal/objectstore"
	"github.com/mohammed-shakir/raster-intake/internal/raster"
)

// Opener resolves a reference to the store holding it.
type Opener interface {
	Open(raw string) (objectstore.Store, objectstore.Location, error)
}

type Options struct {
	CRSOverride int
	Preview     bool
	Stats       bool
	PreviewSize int
	TempDir     string

	// rasters with more pixels than this get no artifacts
	MaxDecodePixels int
}

type Extractor struct {
	src  Opener
	opts Options
	log  *slog.Logger
}

func New(src Opener, opts Options, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	if opts.PreviewSize <= 0 {
		opts.PreviewSize = 1024
	}
	if opts.MaxDecodePixels <= 0 {
		opts.MaxDecodePixels = 256 << 20
	}
	return &Extractor{src: src, opts: opts, log: log}
}

func (e *Extractor) Extract(ctx context.Context, ref string) (raster.Metadata, []raster.Artifact, error) {
	f, err := e.fetch(ctx, ref)
	if err != nil {
		return raster.Metadata{}, nil, err
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	h, err := raster.ReadHeader(f)
	if err != nil {
		return raster.Metadata{}, nil, fmt.Errorf("%s: %w", ref, err)
	}
	md, err := raster.Describe(h, e.opts.CRSOverride)
	if err != nil {
		return raster.Metadata{}, nil, fmt.Errorf("%s: %w", ref, err)
	}
	e.log.DebugContext(ctx, "raster metadata",
		"ref", ref, "width", md.Width, "height", md.Height, "bands", md.Bands, "epsg", md.EPSG)

	return md, e.artifacts(ctx, f, md), nil
}

// fetch copies the object into a temp file so the header parser and decoder get
// random access.
func (e *Extractor) fetch(ctx context.Context, ref string) (*os.File, error) {
	store, loc, err := e.src.Open(ref)
	if err != nil {
		return nil, errkind.UnreadableImage.Wrap(err)
	}
	rc, err := store.Get(ctx, loc.Key)
	if err != nil {
		return nil, classifyFetch(ctx, err)
	}
	defer func() { _ = rc.Close() }()

	f, err := os.CreateTemp(e.opts.TempDir, "intake-*.tif")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, classifyFetch(ctx, err)
	}
	return f, nil
}

func classifyFetch(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, objectstore.ErrNotFound):
		return errkind.UnreadableImage.Wrap(err)
	case ctx.Err() != nil:
		return fmt.Errorf("fetch: %w", ctx.Err())
	default:
		return errkind.Fetch.Wrap(err)
	}
}

// artifacts never fails extraction; problems are logged and the artifact dropped.
func (e *Extractor) artifacts(ctx context.Context, f *os.File, md raster.Metadata) []raster.Artifact {
	if !e.opts.Preview && !e.opts.Stats {
		return nil
	}
	if md.Width*md.Height > e.opts.MaxDecodePixels {
		e.log.InfoContext(ctx, "raster too large for artifacts", "pixels", md.Width*md.Height)
		return nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		e.log.WarnContext(ctx, "artifact generation skipped", "err", err)
		return nil
	}
	img, err := tiff.Decode(f)
	if err != nil {
		e.log.WarnContext(ctx, "artifact generation skipped: decode", "err", err)
		return nil
	}

	var out []raster.Artifact
	if e.opts.Preview {
		if a, err := previewArtifact(img, e.opts.PreviewSize); err != nil {
			e.log.WarnContext(ctx, "preview omitted", "err", err)
		} else {
			out = append(out, a)
		}
	}
	if e.opts.Stats {
		if a, err := statsArtifact(img); err != nil {
			e.log.WarnContext(ctx, "stats omitted", "err", err)
		} else {
			out = append(out, a)
		}
	}
	return out
}
