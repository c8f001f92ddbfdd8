package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures of the feedback pipeline.
type ErrorKind string

const (
	// KindValidation marks a request that violates the request schema.
	KindValidation ErrorKind = "validation_error"
	// KindModelUnavailable marks an unreachable or timed out model endpoint.
	KindModelUnavailable ErrorKind = "model_unavailable"
	// KindModelEmptyResponse marks a model reply without candidate text.
	KindModelEmptyResponse ErrorKind = "model_empty_response"
	// KindMalformedResponse marks model text that cannot be normalized into a FeedbackResult.
	KindMalformedResponse ErrorKind = "malformed_response"
	// KindUnknown is reported for errors outside the taxonomy.
	KindUnknown ErrorKind = "unknown"
)

// Retryable reports whether a caller may retry after backoff.
// Only transient model outages qualify; the pipeline itself never retries.
func (k ErrorKind) Retryable() bool {
	return k == KindModelUnavailable
}

// Sentinel errors for errors.Is matching.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrModelUnavailable   = &Error{Kind: KindModelUnavailable}
	ErrModelEmptyResponse = &Error{Kind: KindModelEmptyResponse}
	ErrMalformedResponse  = &Error{Kind: KindMalformedResponse}
)

// Error is a pipeline failure tagged with its kind.
// Messages must never embed journal text or raw model output.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err with a kind and the operation that failed.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a kinded error from a format string.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels like ErrModelUnavailable
// match regardless of Op or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the ErrorKind from err, or KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return KindValidation
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Violation codes
const (
	CodeRequired     = "required"
	CodeInvalidType  = "invalid_type"
	CodeInvalidJSON  = "invalid_json"
	CodeTooSmall     = "too_small"
	CodeTooBig       = "too_big"
	CodeInvalidValue = "invalid_value"
)

// FieldViolation describes one violated request field.
type FieldViolation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors lists every field that failed validation.
type ValidationErrors []FieldViolation

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, f := range v {
		parts = append(parts, f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrValidation) succeed.
func (v ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

// Fields returns the names of the violated fields in order.
func (v ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(v))
	for _, f := range v {
		fields = append(fields, f.Field)
	}
	return fields
}
