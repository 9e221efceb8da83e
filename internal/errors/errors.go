// Package errors provides the pipeline error taxonomy.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind identifies the category of a pipeline error
type Kind string

const (
	// KindConfigInvalid indicates missing required options, unknown keys,
	// or out-of-range values. Fatal at startup.
	KindConfigInvalid Kind = "CONFIG_INVALID"

	// KindInputMissing indicates zero objects matched a partition prefix
	KindInputMissing Kind = "INPUT_MISSING"

	// KindInputUnavailable indicates a transient read failure that
	// persisted through the retry budget
	KindInputUnavailable Kind = "INPUT_UNAVAILABLE"

	// KindInputSchema indicates a parquet schema mismatch
	KindInputSchema Kind = "INPUT_SCHEMA"

	// KindInputCorrupt indicates an unreadable footer or decoding error
	KindInputCorrupt Kind = "INPUT_CORRUPT"

	// KindAggregationArithmetic indicates a negative or non-finite metric
	KindAggregationArithmetic Kind = "AGGREGATION_ARITHMETIC"

	// KindAttributionInvariant indicates attributed shares exceeding the
	// source cost, or a non-positive derived disk capacity
	KindAttributionInvariant Kind = "ATTRIBUTION_INVARIANT"

	// KindWarehouseConflict indicates pre/post row counts disagree
	KindWarehouseConflict Kind = "WAREHOUSE_CONFLICT"

	// KindWarehouse indicates any other warehouse failure
	KindWarehouse Kind = "WAREHOUSE_ERROR"

	// KindTimeout indicates the provider exceeded its configured wall clock
	KindTimeout Kind = "TIMEOUT"
)

// Exit codes reported by the CLI.
const (
	ExitOK         = 0
	ExitConfig     = 1
	ExitInput      = 2
	ExitArithmetic = 3
	ExitWarehouse  = 4
	ExitTimeout    = 5
)

// Error is a pipeline error carrying provider identity and stage name
type Error struct {
	Kind     Kind   `json:"kind"`
	Provider string `json:"provider,omitempty"`
	Stage    string `json:"stage,omitempty"`
	Message  string `json:"message"`
	Cause    error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Provider != "" {
		prefix += " provider=" + e.Provider
	}
	if e.Stage != "" {
		prefix += " stage=" + e.Stage
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", prefix, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithProvider annotates the error with the provider it failed for
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithStage annotates the error with the pipeline stage it failed in
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// New creates a new error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new formatted error
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a kind and context message
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrapf wraps an error with a kind and formatted context
func Wrapf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of err, or "" when err carries no pipeline kind.
// The first kind found in the chain wins, matching the propagation policy
// of surfacing the first-encountered failure.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ExitCode maps an error to the CLI exit code contract
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindConfigInvalid:
		return ExitConfig
	case KindInputMissing, KindInputUnavailable, KindInputSchema, KindInputCorrupt:
		return ExitInput
	case KindAggregationArithmetic, KindAttributionInvariant:
		return ExitArithmetic
	case KindWarehouseConflict, KindWarehouse:
		return ExitWarehouse
	case KindTimeout:
		return ExitTimeout
	default:
		return ExitConfig
	}
}
