package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/mohammed-shakir/raster-intake/internal/errkind"
	"github.com/mohammed-shakir/raster-intake/internal/logger"
	"github.com/mohammed-shakir/raster-intake/internal/pipeline"
)

// IntakeRequest asks for one image to be processed.
type IntakeRequest struct {
	ImageURI      string `json:"image_uri"`
	ItemID        string `json:"item_id,omitempty"`
	CollectionID  string `json:"collection_id,omitempty"`
	TileServerURL string `json:"tile_server_url,omitempty"`
}

type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Outcome, error)
}

// IntakeHandler runs the single-item pipeline for each request message.
// Retryable failures are redelivered, everything else is dead-lettered.
type IntakeHandler struct {
	proc    Processor
	timeout time.Duration
	log     *slog.Logger
}

func NewIntakeHandler(p Processor, itemTimeout time.Duration, log *slog.Logger) *IntakeHandler {
	if log == nil {
		log = slog.Default()
	}
	return &IntakeHandler{proc: p, timeout: itemTimeout, log: log}
}

func (h *IntakeHandler) Consume(ctx context.Context, msg Message) Outcome {
	var req IntakeRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		h.log.WarnContext(ctx, "intake request undecodable", "offset", msg.Offset, "err", err)
		return DeadLetter
	}
	req.ImageURI = strings.TrimSpace(req.ImageURI)
	if req.ImageURI == "" {
		h.log.WarnContext(ctx, "intake request without image_uri", "offset", msg.Offset)
		return DeadLetter
	}

	// finish the current item even if the session is revoked mid-way
	pctx := context.WithoutCancel(ctx)
	if h.timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(pctx, h.timeout)
		defer cancel()
	}

	out, err := h.proc.Process(pctx, pipeline.Request{
		SourceRef:     req.ImageURI,
		ItemID:        req.ItemID,
		CollectionID:  req.CollectionID,
		TileServerURL: req.TileServerURL,
	})
	if err == nil {
		h.log.InfoContext(logger.WithItemID(ctx, out.Item.ID), "intake request processed", "image", req.ImageURI)
		return Ack
	}

	kind := errkind.Kind(err)
	if errkind.Retryable(err) {
		h.log.WarnContext(ctx, "intake request failed, will be redelivered", "image", req.ImageURI, "kind", kind, "err", err)
		return Retry
	}
	h.log.ErrorContext(ctx, "intake request failed", "image", req.ImageURI, "kind", kind, "err", err)
	return DeadLetter
}
