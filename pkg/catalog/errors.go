package catalog

import (
	"errors"
	"fmt"
)

// Common errors shared across cache tiers and source adapters.
var (
	// ErrNotFound indicates a confirmed absence: the upstream answered
	// and the product does not exist. Distinct from ErrSourceUnavailable.
	ErrNotFound = errors.New("product not found")

	// ErrSourceUnavailable indicates a transient upstream failure
	// (timeout, connection error, 5xx). Callers fall through to the
	// next tier rather than surfacing it.
	ErrSourceUnavailable = errors.New("product source unavailable")

	// ErrInvalidArgument indicates malformed input (empty id,
	// non-positive TTL). Never retried.
	ErrInvalidArgument = errors.New("invalid argument")
)

// SourceError carries upstream context for a failed catalog call.
type SourceError struct {
	Op         string // "fetch" or "fetch_batch"
	ID         string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("catalog %s %q: status %d: %v", e.Op, e.ID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("catalog %s %q: %v", e.Op, e.ID, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a confirmed absence.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable reports whether err is a transient upstream failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}
