package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes the service distinguishes.
var (
	// ErrInvalidInput marks bad or empty caller input. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSemanticUnavailable is returned by semantic search when the query
	// embedding cannot be produced. Callers may fall back to lexical search.
	ErrSemanticUnavailable = errors.New("semantic search unavailable")

	// ErrConstraint marks a storage uniqueness or foreign-key violation.
	// Client-correctable, not retried automatically.
	ErrConstraint = errors.New("storage constraint violation")

	// ErrJobExhausted marks a job that exceeded its retry ceiling. The
	// document ends failed; only the monitor's bounded requeue can revive it.
	ErrJobExhausted = errors.New("job retries exhausted")
)

// TransientError wraps a failure worth retrying: timeouts, 5xx responses,
// connection resets.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a failure that retrying cannot fix: auth rejection,
// unknown model, malformed response shape.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// EmbeddingError is the aggregated failure after the embedding client
// exhausted its attempts; Err carries the last underlying cause.
type EmbeddingError struct {
	Attempts int
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }
