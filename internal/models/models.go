// Package models defines the core data structures for the sleep journal feedback service.
//
// It includes the feedback request/result types, request validation, the error taxonomy
// shared by the model client and the feedback pipeline, and API response envelopes.
package models

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	_ "time/tzdata"
)

// Validation constants for input validation
const (
	// MinJournalTextLength is the minimum journal length in characters
	MinJournalTextLength = 1
	// MaxJournalTextLength is the maximum journal length in characters
	MaxJournalTextLength = 1000
	// MinMood is the lowest mood rating
	MinMood = 1
	// MaxMood is the highest mood rating
	MaxMood = 5
	// MinStress is the lowest stress rating
	MinStress = 1
	// MaxStress is the highest stress rating
	MaxStress = 7
	// MaxLanguageLength bounds the language tag (BCP 47 tags are far shorter)
	MaxLanguageLength = 35
)

// Request defaults
const (
	DefaultLanguage = "ja"
	DefaultTimezone = "Asia/Tokyo"
)

// FeedbackRequest is a validated journal submission.
type FeedbackRequest struct {
	JournalText string `json:"journal_text"`
	Mood        *int   `json:"mood,omitempty"`
	Stress      *int   `json:"stress,omitempty"`
	Language    string `json:"language"`
	Timezone    string `json:"timezone"`
}

// FeedbackRequestPayload is the wire shape of POST /v1/feedback before validation.
// Numbers are decoded as float64 so that non-integer ratings are reported as
// validation violations instead of decode failures.
type FeedbackRequestPayload struct {
	JournalText *string  `json:"journal_text"`
	Mood        *float64 `json:"mood"`
	Stress      *float64 `json:"stress"`
	Language    *string  `json:"language"`
	Timezone    *string  `json:"timezone"`
}

// Validate checks the payload against the request schema and returns the
// normalized FeedbackRequest with defaults applied. On failure the error is a
// ValidationErrors listing every violated field.
func (p FeedbackRequestPayload) Validate() (FeedbackRequest, error) {
	var violations ValidationErrors
	req := FeedbackRequest{Language: DefaultLanguage, Timezone: DefaultTimezone}

	if p.JournalText == nil {
		violations = append(violations, FieldViolation{Field: "journal_text", Code: CodeRequired, Message: "journal_text is required"})
	} else {
		n := utf8.RuneCountInString(*p.JournalText)
		switch {
		case n < MinJournalTextLength:
			violations = append(violations, FieldViolation{Field: "journal_text", Code: CodeTooSmall,
				Message: fmt.Sprintf("journal_text must contain at least %d character(s)", MinJournalTextLength)})
		case n > MaxJournalTextLength:
			violations = append(violations, FieldViolation{Field: "journal_text", Code: CodeTooBig,
				Message: fmt.Sprintf("journal_text must contain at most %d character(s)", MaxJournalTextLength)})
		default:
			req.JournalText = *p.JournalText
		}
	}

	if v, ok := validateRating("mood", p.Mood, MinMood, MaxMood, &violations); ok {
		req.Mood = v
	}
	if v, ok := validateRating("stress", p.Stress, MinStress, MaxStress, &violations); ok {
		req.Stress = v
	}

	if p.Language != nil && *p.Language != "" {
		lang := strings.TrimSpace(*p.Language)
		if utf8.RuneCountInString(lang) > MaxLanguageLength {
			violations = append(violations, FieldViolation{Field: "language", Code: CodeTooBig,
				Message: fmt.Sprintf("language must contain at most %d character(s)", MaxLanguageLength)})
		} else if lang != "" {
			req.Language = lang
		}
	}

	if p.Timezone != nil && *p.Timezone != "" {
		if _, err := time.LoadLocation(*p.Timezone); err != nil {
			violations = append(violations, FieldViolation{Field: "timezone", Code: CodeInvalidValue, Message: "invalid timezone"})
		} else {
			req.Timezone = *p.Timezone
		}
	}

	if len(violations) > 0 {
		return FeedbackRequest{}, violations
	}
	return req, nil
}

// validateRating checks an optional integer rating in [lo, hi].
func validateRating(field string, v *float64, lo, hi int, violations *ValidationErrors) (*int, bool) {
	if v == nil {
		return nil, true
	}
	if *v != math.Trunc(*v) {
		*violations = append(*violations, FieldViolation{Field: field, Code: CodeInvalidType, Message: field + " must be an integer"})
		return nil, false
	}
	if *v < float64(lo) {
		*violations = append(*violations, FieldViolation{Field: field, Code: CodeTooSmall,
			Message: fmt.Sprintf("%s must be greater than or equal to %d", field, lo)})
		return nil, false
	}
	if *v > float64(hi) {
		*violations = append(*violations, FieldViolation{Field: field, Code: CodeTooBig,
			Message: fmt.Sprintf("%s must be less than or equal to %d", field, hi)})
		return nil, false
	}
	n := int(*v)
	return &n, true
}

// FeedbackResult is the structured feedback returned to callers.
// The jsonschema tags drive the schema sent to providers that support guided generation.
type FeedbackResult struct {
	Summary          string   `json:"summary" jsonschema:"required,description=Short summary of the journal entry in one or two sentences"`
	EmpathicFeedback string   `json:"empathic_feedback" jsonschema:"required,description=Warm and attentive feedback in two or three sentences"`
	Tags             []string `json:"tags" jsonschema:"required,description=Topic tags for the entry"`
	RiskScore        float64  `json:"risk_score" jsonschema:"required,description=Advisory mental health risk score between 0.0 and 1.0"`
	NextActions      []string `json:"next_actions" jsonschema:"required,description=One to three concrete next steps"`
	SafetyNote       *string  `json:"safety_note" jsonschema:"required,description=General support guidance when crisis content is detected otherwise null"`
}

// HasSafetyNote reports whether the model attached a safety note.
func (r FeedbackResult) HasSafetyNote() bool {
	return r.SafetyNote != nil
}

// RiskScoreInRange reports whether the risk score lies in [0, 1].
func (r FeedbackResult) RiskScoreInRange() bool {
	return r.RiskScore >= 0 && r.RiskScore <= 1
}

// API response envelopes

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string           `json:"error"`
	Message string           `json:"message,omitempty"`
	Details []FieldViolation `json:"details,omitempty"`
}

// Error response titles
const (
	ErrorTitleValidation      = "Validation error"
	ErrorTitleInternal        = "Internal server error"
	ErrorTitleTooManyRequests = "Too many requests"
	ErrorTitleNotFound        = "Not found"
	ErrorTitleMethod          = "Method not allowed"
	ErrorTitleForbidden       = "Forbidden"
)

// ErrorWithMessage creates an error response with a title and message.
func ErrorWithMessage(title, message string) ErrorResponse {
	return ErrorResponse{Error: title, Message: message}
}

// ValidationFailed creates a 400 response body listing the violated fields.
func ValidationFailed(details ValidationErrors) ErrorResponse {
	return ErrorResponse{Error: ErrorTitleValidation, Details: []FieldViolation(details)}
}

// InternalError creates the generic 500 response body. It never carries internal detail.
func InternalError() ErrorResponse {
	return ErrorWithMessage(ErrorTitleInternal, "Failed to generate feedback. Please try again later.")
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}
