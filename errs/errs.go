// Package errs defines the error taxonomy shared by the diffmap packages.
//
// Every failure surfaced by the graph pipeline carries a Kind:
//   - CONFIGURATION: an unsupported combination of options
//   - DIMENSION_MISMATCH: a vector does not match the feature space
//   - RESOURCE_EXHAUSTION: a memory budget check failed; callers fall back
//     to a slower path instead of failing
//   - NUMERIC_DEGENERACY: a quantity that must be positive (a density, a
//     spectral gap) vanished, so the computation is undefined
//
// # Usage
//
//	err := errs.New(errs.KindConfiguration, "graph.Kernel", "unweighted flavor requires knn")
//	if errors.Is(err, errs.ErrConfiguration) {
//	    // handle
//	}
package errs

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

// Error kinds.
const (
	KindConfiguration      Kind = "CONFIGURATION"
	KindDimensionMismatch  Kind = "DIMENSION_MISMATCH"
	KindResourceExhaustion Kind = "RESOURCE_EXHAUSTION"
	KindNumericDegeneracy  Kind = "NUMERIC_DEGENERACY"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrConfiguration      = &Error{Kind: KindConfiguration}
	ErrDimensionMismatch  = &Error{Kind: KindDimensionMismatch}
	ErrResourceExhaustion = &Error{Kind: KindResourceExhaustion}
	ErrNumericDegeneracy  = &Error{Kind: KindNumericDegeneracy}
)

// Error is a categorized error raised by an operation.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "graph.Transition"
	Message string
	Cause   error
}

// New creates an error of the given kind. Message may contain format verbs.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, op string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += " in " + e.Op
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind. This makes the
// package sentinels usable with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Is reports whether any error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
