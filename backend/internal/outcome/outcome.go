// Package outcome carries the result of a best-effort external call or an
// online query, so callers branch on the cause instead of on nil values.
package outcome

import (
	"errors"

	apperrors "cinegraph/backend/pkg/errors"
)

// Status is the cause attached to an Outcome
type Status string

const (
	StatusOk            Status = "ok"
	StatusNotFound      Status = "not_found"
	StatusEmpty         Status = "empty"
	StatusTimedOut      Status = "timed_out"
	StatusUpstreamError Status = "upstream_error"
	StatusInvalid       Status = "invalid_input"
)

// Outcome is either a value or the reason there is none
type Outcome[T any] struct {
	Status Status `json:"status"`
	Value  T      `json:"value"`
	Detail string `json:"detail,omitempty"`
}

// Ok wraps a successful value
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Status: StatusOk, Value: v}
}

// NotFound reports an entity absent from the queried space
func NotFound[T any](detail string) Outcome[T] {
	return Outcome[T]{Status: StatusNotFound, Detail: detail}
}

// Empty reports a valid query with zero qualifying candidates. The zero
// value of T is still returned so callers can serialize it directly.
func Empty[T any](v T, detail string) Outcome[T] {
	return Outcome[T]{Status: StatusEmpty, Value: v, Detail: detail}
}

// TimedOut reports an upstream call that exceeded its time budget
func TimedOut[T any](detail string) Outcome[T] {
	return Outcome[T]{Status: StatusTimedOut, Detail: detail}
}

// UpstreamError reports an unexpected failure in an external collaborator
func UpstreamError[T any](detail string) Outcome[T] {
	return Outcome[T]{Status: StatusUpstreamError, Detail: detail}
}

// Invalid reports a request rejected before any work was done
func Invalid[T any](detail string) Outcome[T] {
	return Outcome[T]{Status: StatusInvalid, Detail: detail}
}

// FromError maps an error from the taxonomy in pkg/errors to an Outcome
func FromError[T any](err error) Outcome[T] {
	var notFound *apperrors.ErrEntityNotFound
	var empty *apperrors.ErrEmptyResult
	switch {
	case err == nil:
		var zero T
		return Ok(zero)
	case errors.As(err, &notFound):
		return NotFound[T](err.Error())
	case errors.As(err, &empty):
		var zero T
		return Empty(zero, empty.Reason)
	case apperrors.IsErrorType(err, apperrors.ErrorTypeTimeout):
		return TimedOut[T](err.Error())
	case apperrors.IsErrorType(err, apperrors.ErrorTypeInput):
		return Invalid[T](err.Error())
	default:
		return UpstreamError[T](err.Error())
	}
}

// IsOk reports whether the outcome carries a value
func (o Outcome[T]) IsOk() bool {
	return o.Status == StatusOk
}

// Map transforms the value of a successful outcome and forwards any other status
func Map[T, U any](o Outcome[T], fn func(T) U) Outcome[U] {
	if o.Status != StatusOk {
		return Outcome[U]{Status: o.Status, Detail: o.Detail}
	}
	return Ok(fn(o.Value))
}
