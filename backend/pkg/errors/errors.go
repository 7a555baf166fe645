package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeArtifact represents missing or inconsistent persisted artifacts
	ErrorTypeArtifact ErrorType = "artifact"
	// ErrorTypeNotFound represents an entity absent from the queried space
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeEmpty represents a valid query with zero qualifying candidates
	ErrorTypeEmpty ErrorType = "empty"
	// ErrorTypeTimeout represents an upstream call that exceeded its budget
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeUpstream represents an unexpected failure of the fact store or embedding service
	ErrorTypeUpstream ErrorType = "upstream"
	// ErrorTypeGraph represents fact store driver errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeInput represents invalid caller input
	ErrorTypeInput ErrorType = "input"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// baseOf lets IsErrorType see through the typed wrappers below
type baseOf interface {
	base() *BaseError
}

func (e *BaseError) base() *BaseError { return e }

// Artifact Errors

// ErrMissingArtifact is returned when a required persisted file is absent
type ErrMissingArtifact struct {
	*BaseError
	Name string
	Path string
}

func NewMissingArtifact(name, path string) *ErrMissingArtifact {
	return &ErrMissingArtifact{
		BaseError: NewBaseError(ErrorTypeArtifact, fmt.Sprintf("missing artifact %s at %s", name, path), nil),
		Name:      name,
		Path:      path,
	}
}

// ErrArtifactMismatch is returned when persisted artifacts disagree on rows or ids
type ErrArtifactMismatch struct {
	*BaseError
	Detail string
}

func NewArtifactMismatch(detail string) *ErrArtifactMismatch {
	return &ErrArtifactMismatch{
		BaseError: NewBaseError(ErrorTypeArtifact, fmt.Sprintf("artifacts out of sync: %s", detail), nil),
		Detail:    detail,
	}
}

// Lookup Errors

// ErrEntityNotFound is returned when an entity is absent from the relevant space
type ErrEntityNotFound struct {
	*BaseError
	Space string
	ID    string
}

func NewEntityNotFound(space, id string) *ErrEntityNotFound {
	return &ErrEntityNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("%s not found: %s", space, id), nil),
		Space:     space,
		ID:        id,
	}
}

// ErrEmptyResult marks a valid query that produced no candidates
type ErrEmptyResult struct {
	*BaseError
	Reason string
}

func NewEmptyResult(reason string) *ErrEmptyResult {
	return &ErrEmptyResult{
		BaseError: NewBaseError(ErrorTypeEmpty, reason, nil),
		Reason:    reason,
	}
}

// Upstream Errors

// ErrUpstreamTimeout is returned when a fact store or embedding call exceeds its budget
type ErrUpstreamTimeout struct {
	*BaseError
	Operation string
	Timeout   time.Duration
}

func NewUpstreamTimeout(operation string, timeout time.Duration) *ErrUpstreamTimeout {
	return &ErrUpstreamTimeout{
		BaseError: NewBaseError(ErrorTypeTimeout, fmt.Sprintf("%s exceeded %v, query too slow, simplify it", operation, timeout), nil),
		Operation: operation,
		Timeout:   timeout,
	}
}

// ErrUpstreamFailure wraps an unexpected error raised by an external service
type ErrUpstreamFailure struct {
	*BaseError
	Service string
}

func NewUpstreamFailure(service string, err error) *ErrUpstreamFailure {
	return &ErrUpstreamFailure{
		BaseError: NewBaseError(ErrorTypeUpstream, fmt.Sprintf("%s call failed", service), err),
		Service:   service,
	}
}

// Graph Errors

// ErrGraphConnectionFailed is returned when Neo4j connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphQueryFailed is returned when a fact store pattern query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("query failed: %s", query), err),
		Query:     query,
	}
}

// Input Errors

// ErrInvalidInput is returned when a caller passes an unusable argument
type ErrInvalidInput struct {
	*BaseError
	Field  string
	Reason string
}

func NewInvalidInput(field, reason string) *ErrInvalidInput {
	return &ErrInvalidInput{
		BaseError: NewBaseError(ErrorTypeInput, fmt.Sprintf("invalid %s: %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// ErrConfigValidationFailed is returned when a config value is out of range
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// Helper functions

// IsErrorType checks if an error, or anything it wraps, is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if b, ok := err.(baseOf); ok && b.base().Type == errType {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// A rebuilt artifact set is needed, retrying the same call won't help
	if IsErrorType(err, ErrorTypeArtifact) || IsErrorType(err, ErrorTypeInput) {
		return false
	}
	if IsErrorType(err, ErrorTypeTimeout) {
		return true
	}
	if IsErrorType(err, ErrorTypeUpstream) || IsErrorType(err, ErrorTypeGraph) {
		return true
	}
	return false
}
