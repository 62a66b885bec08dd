// Package perrors defines the error kinds the resolution pipeline, queue
// workers, and lifecycle manager dispatch on (SPEC_FULL.md §7).
package perrors

import "github.com/pkg/errors"

// Kind is one of the six error categories spec.md §7 assigns distinct
// propagation policy to.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindOracleTransient       Kind = "oracle_transient"
	KindOracleDefinitive      Kind = "oracle_definitive"
	KindInterpolationDeclined Kind = "interpolation_declined"
	KindStore                 Kind = "store"
	KindCache                 Kind = "cache"
)

// Error carries a Kind alongside the wrapped cause so callers can dispatch
// on category without string-matching.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, cause: errors.Errorf(format, args...)}
}

func wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, cause: errors.Wrap(err, msg)}
}

func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

func OracleTransient(err error, msg string) *Error {
	return wrap(KindOracleTransient, err, msg)
}

func OracleDefinitive(format string, args ...interface{}) *Error {
	return newf(KindOracleDefinitive, format, args...)
}

// ErrInterpolationDeclined is a sentinel with a fixed message, not a
// wrapped failure —
// the interpolation engine declining is an expected outcome, not a fault.
var ErrInterpolationDeclined = &Error{Kind: KindInterpolationDeclined, cause: errors.New("insufficient or low-confidence data")}

func Store(err error, msg string) *Error {
	return wrap(KindStore, err, msg)
}

func Cache(err error, msg string) *Error {
	return wrap(KindCache, err, msg)
}

// KindOf recovers the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// Is reports whether err's Kind matches k.
func Is(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}
