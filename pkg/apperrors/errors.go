// Package apperrors defines the structured error taxonomy shared across the
// comparison pipeline. Every failure carries a machine-readable kind plus
// context (triggering keyword, database name, cost-versus-ceiling numbers),
// never a bare boolean.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind identifies one failure class in the pipeline taxonomy.
type Kind string

const (
	// KindValidationRejected is terminal: the caller must rewrite the query.
	KindValidationRejected Kind = "validation_rejected"
	// KindDatabaseUnavailable is terminal for this call; safe to retry later
	// externally.
	KindDatabaseUnavailable Kind = "database_unavailable"
	// KindCostRejected is terminal unless a permitted override is supplied.
	KindCostRejected Kind = "cost_rejected"
	// KindExecutionFailed covers failures while running the comparison. The
	// "cause" context entry refines it: permission, syntax, resource.
	KindExecutionFailed Kind = "execution_failed"
	// KindCleanupFailed is non-fatal to an otherwise-successful comparison
	// but surfaced as a warning: it signals leaked staging state.
	KindCleanupFailed Kind = "cleanup_failed"
	// KindPoolExhausted means a connection checkout could not be satisfied
	// within the bounded wait.
	KindPoolExhausted Kind = "pool_exhausted"
	// KindTimeout distinguishes deadline expiry; the "phase" context entry
	// tells probe timeouts from diff-execution timeouts.
	KindTimeout Kind = "timeout"
	// KindAuthFailure means the engine rejected the configured credentials.
	KindAuthFailure Kind = "auth_failure"
	// KindUnsupportedFeature means the engine family cannot perform the
	// requested operation.
	KindUnsupportedFeature Kind = "unsupported_engine_feature"
)

// ErrUnknownDatabase is returned when a logical database name is not in the
// catalog.
var ErrUnknownDatabase = errors.New("unknown database")

// Error is the structured error type used throughout the service.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind via a bare &Error{Kind: k}.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// With attaches one context entry and returns the error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New builds a structured error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a structured error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain, or "" if the chain carries no
// structured error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
