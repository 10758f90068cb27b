package core

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrValidation indicates a bad or missing input; fatal, returned to the caller immediately
	ErrValidation = errors.New("invalid search request")

	// ErrEncoding indicates the encoder rejected or failed on an input; fatal for that request
	ErrEncoding = errors.New("image encoding failed")

	// ErrAttributeExtraction indicates the vision-language call failed; never fatal,
	// the pipeline proceeds without attributes
	ErrAttributeExtraction = errors.New("attribute extraction failed")

	// ErrDimensionMismatch indicates a queried embedding does not match the index's
	// model version or dimension; surfaced loudly, it signals systemic misconfiguration
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrOverloaded indicates the encoder queue is full; the caller should back off and retry
	ErrOverloaded = errors.New("encoder queue overloaded")

	// ErrCacheUnavailable indicates a cache backend failure; always bypassed, never fatal
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrEncoderUnavailable indicates the encoder is not loaded; fatal with no fallback
	ErrEncoderUnavailable = errors.New("encoder unavailable")

	// ErrProductNotFound indicates the requested product does not exist
	ErrProductNotFound = errors.New("product not found")
)

// PipelineError wraps a failure with the pipeline stage that produced it
type PipelineError struct {
	Stage string // pipeline stage, e.g. "embedding", "index_querying"
	Err   error
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a stage-tagged error
func NewPipelineError(stage string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Err: err}
}

// IsRetryable reports whether the caller may retry the request after backoff
func IsRetryable(err error) bool {
	return errors.Is(err, ErrOverloaded)
}

// IsFatal reports whether an error aborts the whole request. Only input
// validation, encoding failures and total encoder unavailability are fatal;
// every other step degrades.
func IsFatal(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrEncoding) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrOverloaded) ||
		errors.Is(err, ErrEncoderUnavailable)
}
