package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInput indicates a required field is missing or empty.
	ErrInput = errors.New("invalid input")

	// ErrNotFound indicates a conversation, plan or index does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIndexNotFound is returned by retrieval when no index was built for the source.
	ErrIndexNotFound = fmt.Errorf("index %w", ErrNotFound)

	// ErrExtractionEmpty indicates the uploaded document produced no text.
	ErrExtractionEmpty = errors.New("no text could be extracted")

	// ErrUpstream is matched by every UpstreamError.
	ErrUpstream = errors.New("upstream failure")
)

// InputError annotates ErrInput with the offending field.
func InputError(field string) error {
	return fmt.Errorf("%w: %s is required", ErrInput, field)
}

// UpstreamError wraps a failure of the embedding model or LLM.
type UpstreamError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// IsRetryable reports whether err carries a retryable UpstreamError.
func IsRetryable(err error) bool {
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Retryable
	}
	return false
}
