package catalog

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/raster-intake/internal/catalog/keys"
	"github.com/mohammed-shakir/raster-intake/internal/core/observability"
	"github.com/mohammed-shakir/raster-intake/internal/errkind"
	"github.com/mohammed-shakir/raster-intake/internal/logger"
	"github.com/mohammed-shakir/raster-intake/internal/publish"
	"github.com/mohammed-shakir/raster-intake/internal/stac"
	"github.com/mohammed-shakir/raster-intake/internal/stream"
)

type WriterOptions struct {
	DedupeSize   int
	StoreTimeout time.Duration
	Logger       *slog.Logger
}

// Writer applies delivered catalog items to a Store. It implements stream.Handler.
type Writer struct {
	store   Store
	dedupe  *fingerprintDedupe
	timeout time.Duration
	log     *slog.Logger
}

func NewWriter(store Store, opts WriterOptions) *Writer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 2 * time.Second
	}
	return &Writer{
		store:   store,
		dedupe:  newFingerprintDedupe(opts.DedupeSize),
		timeout: opts.StoreTimeout,
		log:     opts.Logger,
	}
}

func (w *Writer) Consume(ctx context.Context, msg stream.Message) stream.Outcome {
	it, err := stac.Decode(msg.Value)
	if err != nil {
		w.log.WarnContext(ctx, "item rejected",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset,
			"error_kind", errkind.Kind(err), "error", err)
		observability.IncWriterOutcome(stream.DeadLetter.String(), "invalid")
		return stream.DeadLetter
	}
	ctx = logger.WithItemID(ctx, it.ID)

	fp := keys.Fingerprint(msg.Value)
	key := it.Key()
	if w.dedupe.seen(key, fp) {
		observability.IncWriterOutcome(stream.Ack.String(), "duplicate")
		return stream.Ack
	}

	rec := Record{
		Collection:  it.Collection,
		ID:          it.ID,
		Body:        msg.Value,
		LogicalTS:   LogicalTimestamp(msg, it),
		Fingerprint: fp,
		Cells:       it.Properties.H3Cells,
	}

	sctx, cancel := context.WithTimeout(ctx, w.timeout)
	res, err := w.store.PutItem(sctx, rec)
	cancel()
	if err != nil {
		if !errkind.Retryable(err) {
			w.log.ErrorContext(ctx, "item upsert failed", "item", key, "error_kind", errkind.Kind(err), "error", err)
			observability.IncWriterOutcome(stream.DeadLetter.String(), "error")
			return stream.DeadLetter
		}
		w.log.WarnContext(ctx, "store unavailable, will redeliver", "item", key, "error", err)
		observability.IncWriterOutcome(stream.Retry.String(), "error")
		return stream.Retry
	}

	w.dedupe.remember(key, fp)
	w.log.DebugContext(ctx, "item applied", "item", key, "result", res.String(), "logical_ts", rec.LogicalTS)
	observability.IncWriterOutcome(stream.Ack.String(), res.String())
	return stream.Ack
}

// LogicalTimestamp orders versions of one item: the logical-ts header, then the
// broker timestamp, then properties.updated. Zero when none is present.
func LogicalTimestamp(msg stream.Message, it stac.Item) int64 {
	if v := strings.TrimSpace(msg.Header(publish.HeaderLogicalTS)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	if !msg.Timestamp.IsZero() && msg.Timestamp.Unix() > 0 {
		return msg.Timestamp.UnixNano()
	}
	if t, err := time.Parse(time.RFC3339Nano, it.Properties.Updated); err == nil {
		return t.UnixNano()
	}
	return 0
}
