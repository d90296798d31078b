// Package publish stores item artifacts idempotently and emits finished items onto
// the delivery channel.
package publish

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/raster-intake/internal/core/observability"
	"github.com/mohammed-shakir/raster-intake/internal/errkind"
	"github.com/mohammed-shakir/raster-intake/internal/objectstore"
	"github.com/mohammed-shakir/raster-intake/internal/raster"
	"github.com/mohammed-shakir/raster-intake/internal/stac"
)

// metadata key holding the hex sha256 of the object body
const hashMetaKey = "sha256"

type Delivery struct {
	Topic     string
	Partition int32
	Offset    int64
}

// Emitter writes one item message; the write is atomic.
type Emitter interface {
	Emit(ctx context.Context, key string, payload []byte, logicalTS time.Time) (Delivery, error)
}

type Result struct {
	Uploaded  []string
	Skipped   []string
	Delivery  Delivery
	LogicalTS time.Time
}

type Options struct {
	MaxUploads int
	Logger     *slog.Logger
	Now        func() time.Time
}

type Publisher struct {
	store   objectstore.Store
	prefix  string
	emitter Emitter
	opts    Options
}

// New publishes under prefix inside store; prefix is the key part of the output URL.
func New(store objectstore.Store, prefix string, emitter Emitter, opts Options) *Publisher {
	if opts.MaxUploads <= 0 {
		opts.MaxUploads = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Publisher{store: store, prefix: prefix, emitter: emitter, opts: opts}
}

func (p *Publisher) key(it stac.Item, a raster.Artifact) string {
	return objectstore.Location{Key: p.prefix}.Join(stac.AssetKey(it.Collection, it.ID, a.File)).Key
}

// Publish commits every artifact before the item is emitted. It never retries;
// UploadError and PublishError are left to the caller.
func (p *Publisher) Publish(ctx context.Context, it stac.Item, artifacts []raster.Artifact) (Result, error) {
	var (
		mu  sync.Mutex
		res Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxUploads)
	for _, a := range artifacts {
		g.Go(func() error {
			key := p.key(it, a)
			skipped, err := p.upload(gctx, key, a)
			if err != nil {
				return err
			}
			mu.Lock()
			if skipped {
				res.Skipped = append(res.Skipped, key)
			} else {
				res.Uploaded = append(res.Uploaded, key)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		observability.AddUploads("error", 1)
		return Result{}, err
	}
	sort.Strings(res.Uploaded)
	sort.Strings(res.Skipped)
	observability.AddUploads("uploaded", len(res.Uploaded))
	observability.AddUploads("skipped", len(res.Skipped))

	payload, err := json.Marshal(it)
	if err != nil {
		return Result{}, fmt.Errorf("encode item %s: %w", it.Key(), err)
	}
	res.LogicalTS = p.opts.Now()
	d, err := p.emitter.Emit(ctx, it.Key(), payload, res.LogicalTS)
	if err != nil {
		return Result{}, errkind.Publish.Wrap(err)
	}
	res.Delivery = d

	p.opts.Logger.InfoContext(ctx, "item published",
		"item", it.Key(),
		"uploaded", len(res.Uploaded),
		"skipped", len(res.Skipped),
		"topic", d.Topic, "partition", d.Partition, "offset", d.Offset,
	)
	return res, nil
}

// upload reports skipped=true when an identical object is already stored.
func (p *Publisher) upload(ctx context.Context, key string, a raster.Artifact) (bool, error) {
	sum := sha256.Sum256(a.Data)
	hash := hex.EncodeToString(sum[:])

	info, err := p.store.Stat(ctx, key)
	switch {
	case err == nil && info.Metadata[hashMetaKey] == hash:
		return true, nil
	case err != nil && !errors.Is(err, objectstore.ErrNotFound):
		return false, errkind.Upload.Wrap(err)
	}

	err = p.store.Put(ctx, key, bytes.NewReader(a.Data), int64(len(a.Data)), objectstore.PutOptions{
		ContentType: a.MediaType,
		Metadata:    map[string]string{hashMetaKey: hash},
	})
	if err != nil {
		return false, errkind.Upload.Wrap(err)
	}
	return false, nil
}
