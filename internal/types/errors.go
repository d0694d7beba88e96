package types

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the pipeline's error taxonomy so phase
// drivers can decide whether to retry, skip, or abort.
type Kind string

const (
	KindTransientNetwork Kind = "transient_network"
	KindPermanentNetwork Kind = "permanent_network"
	KindParse            Kind = "parse"
	KindRateLimit        Kind = "rate_limit"
	KindImageUnavailable Kind = "image_unavailable"
	KindStoreIntegrity   Kind = "store_integrity"
	KindCancelled        Kind = "cancelled"
	KindConfig           Kind = "config"
)

// PipelineError wraps an underlying error with a Kind so callers can branch
// on retry policy without string-matching messages.
type PipelineError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewError builds a PipelineError tagged with kind.
func NewError(kind Kind, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind of err if it (or something it wraps) is a
// *PipelineError; ok is false otherwise.
func KindOf(err error) (Kind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// IsKind reports whether err's Kind equals kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// ErrCancelled is a sentinel for a cancelled operation. The blocking
// operations in this module do not return it; they report cancellation as
// ctx.Err() or as a KindCancelled PipelineError.
var ErrCancelled = errors.New("operation cancelled")

// ErrBadPair is returned by the pair aggregator for currency pairs outside
// its supported set.
var ErrBadPair = errors.New("unsupported currency pair")
