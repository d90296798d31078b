// Package errkind classifies intake failures into retryable and terminal kinds.
package errkind

import (
	"context"
	"errors"

	"github.com/zeebo/errs"
)

var (
	// source defects
	UnreadableImage   = errs.Class("unreadable image")
	MissingProjection = errs.Class("missing projection")

	// construction defects
	MissingTemporalMetadata = errs.Class("missing temporal metadata")
	InvalidGeometry         = errs.Class("invalid geometry")

	// transient I/O
	Fetch            = errs.Class("fetch")
	Upload           = errs.Class("upload")
	Publish          = errs.Class("publish")
	StoreUnavailable = errs.Class("store unavailable")

	// payload defect on the ingest side
	Validation = errs.Class("validation")
)

type kind struct {
	class     *errs.Class
	name      string
	retryable bool
}

var kinds = []kind{
	{&UnreadableImage, "UnreadableImageError", false},
	{&MissingProjection, "MissingProjectionError", false},
	{&MissingTemporalMetadata, "MissingTemporalMetadataError", false},
	{&InvalidGeometry, "InvalidGeometryError", false},
	{&Validation, "ValidationError", false},
	{&Fetch, "FetchError", true},
	{&Upload, "UploadError", true},
	{&Publish, "PublishError", true},
	{&StoreUnavailable, "StoreUnavailableError", true},
}

// Kind returns the taxonomy name for err. Unclassified errors report "UnknownError",
// per-item deadline expiry reports "TimeoutError".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if k.class.Has(err) {
			return k.name
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TimeoutError"
	}
	return "UnknownError"
}

// Retryable reports whether err belongs to the transient I/O kinds. Deadline expiry
// counts as transient. Terminal classes win over a wrapped transient cause.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	for _, k := range kinds {
		if k.class.Has(err) {
			return k.retryable
		}
	}
	return errors.Is(err, context.DeadlineExceeded)
}
