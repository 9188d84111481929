// Package etlerr defines the failure kinds a single transformation can end in
// and how each one is reported to the invoking caller.
package etlerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindIneligibleInput
	KindInvalidInvocation
	KindFetch
	KindDecode
	KindEmptyInput
	KindSchemaCollision
	KindRowShape
	KindEncode
	KindWrite
)

func (k Kind) String() string {
	switch k {
	case KindIneligibleInput:
		return "IneligibleInput"
	case KindInvalidInvocation:
		return "InvalidInvocation"
	case KindFetch:
		return "FetchFailure"
	case KindDecode:
		return "DecodeFailure"
	case KindEmptyInput:
		return "EmptyInputError"
	case KindSchemaCollision:
		return "SchemaCollisionError"
	case KindRowShape:
		return "RowShapeError"
	case KindEncode:
		return "EncodeFailure"
	case KindWrite:
		return "WriteFailure"
	default:
		return "Unknown"
	}
}

// StatusCode maps a kind onto the invocation result code.
func (k Kind) StatusCode() int {
	switch k {
	case KindIneligibleInput:
		return http.StatusOK
	case KindInvalidInvocation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether re-delivering the same notification can succeed
// without a different input.
func (k Kind) Retryable() bool {
	return k == KindFetch || k == KindWrite || k == KindUnknown
}

// Error is the typed failure returned by every pipeline stage.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth re-delivering.
func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// New wraps err with a kind and the operation that failed.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is New with a formatted cause.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
