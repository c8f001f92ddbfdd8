package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nisiwa02/sleep-journal-app/internal/models"
)

// feedbackHandler validates a journal submission, generates feedback and
// records a metadata receipt. Journal text and model output are never logged.
func (s *Server) feedbackHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	defer r.Body.Close()

	req, textLength, err := decodeFeedbackRequest(r)
	if err != nil {
		var violations models.ValidationErrors
		if !errors.As(err, &violations) {
			violations = models.ValidationErrors{{Field: "body", Code: models.CodeInvalidJSON, Message: "request body must be a JSON object"}}
		}
		slog.Warn("Server.feedbackHandler: validation failed", "request_id", requestID, "fields", violations.Fields(), "text_length", textLength)
		s.recordReceipt(models.Receipt{
			RequestID:  requestID,
			Status:     string(models.KindValidation),
			TextLength: textLength,
			DurationMS: time.Since(start).Milliseconds(),
		})
		writeValidationError(w, violations)
		return
	}

	receipt := models.Receipt{
		RequestID:     requestID,
		PromptVersion: s.generator.PromptVersion(),
		Provider:      s.generator.Provider(),
		Model:         s.generator.Model(),
		TextLength:    textLength,
		Mood:          req.Mood,
		Stress:        req.Stress,
		Language:      req.Language,
		Timezone:      req.Timezone,
	}
	slog.Info("Server.feedbackHandler: generating feedback",
		"request_id", requestID,
		"text_length", textLength,
		"mood", optionalInt(req.Mood),
		"stress", optionalInt(req.Stress),
		"language", req.Language,
		"timezone", req.Timezone,
		"prompt_version", receipt.PromptVersion)

	result, err := s.generator.Generate(r.Context(), req)
	receipt.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		kind := models.KindOf(err)
		slog.Error("Server.feedbackHandler: feedback generation failed",
			"request_id", requestID,
			"error_kind", kind,
			"retryable", kind.Retryable(),
			"duration_ms", receipt.DurationMS,
			"error", err)
		receipt.Status = string(kind)
		s.recordReceipt(receipt)
		writeInternalError(w)
		return
	}

	if !result.RiskScoreInRange() {
		slog.Warn("Server.feedbackHandler: risk score outside [0, 1]", "request_id", requestID, "risk_score", result.RiskScore)
	}
	slog.Info("Server.feedbackHandler: feedback generated",
		"request_id", requestID,
		"risk_score", result.RiskScore,
		"has_safety_note", result.HasSafetyNote(),
		"tag_count", len(result.Tags),
		"duration_ms", receipt.DurationMS)

	receipt.Status = models.ReceiptStatusOK
	score := result.RiskScore
	receipt.RiskScore = &score
	receipt.HasSafetyNote = result.HasSafetyNote()
	s.recordReceipt(receipt)

	writeJSONResponse(w, http.StatusOK, result)
}

// decodeFeedbackRequest parses and validates the body. The returned length is
// the journal text's rune count when one was decoded.
func decodeFeedbackRequest(r *http.Request) (models.FeedbackRequest, int, error) {
	var payload models.FeedbackRequestPayload
	dec := json.NewDecoder(r.Body)
	decodeErr := dec.Decode(&payload)
	if decodeErr == nil {
		// Exactly one JSON value per body.
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			decodeErr = errTrailingData
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				decodeErr = err
			}
		}
	}

	textLength := 0
	if payload.JournalText != nil {
		textLength = utf8.RuneCountInString(*payload.JournalText)
	}

	var typeErr *json.UnmarshalTypeError
	switch {
	case decodeErr == nil:
		req, err := payload.Validate()
		return req, textLength, err
	case errors.As(decodeErr, new(*http.MaxBytesError)):
		return models.FeedbackRequest{}, textLength, models.ValidationErrors{{
			Field:   "body",
			Code:    models.CodeTooBig,
			Message: "request body is too large",
		}}
	case errors.As(decodeErr, &typeErr) && typeErr.Field != "":
		// The decoder keeps going after a type mismatch, so the remaining
		// fields are still validated. The mismatched field decodes as absent
		// and must not also be reported as missing.
		field := typeErr.Field
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[:i]
		}
		violations := models.ValidationErrors{{
			Field:   field,
			Code:    models.CodeInvalidType,
			Message: fmt.Sprintf("%s must be of type %s", field, expectedType(field)),
		}}
		if _, err := payload.Validate(); err != nil {
			var rest models.ValidationErrors
			if errors.As(err, &rest) {
				for _, v := range rest {
					if v.Field == field {
						continue
					}
					violations = append(violations, v)
				}
			}
		}
		return models.FeedbackRequest{}, textLength, violations
	default:
		return models.FeedbackRequest{}, textLength, models.ValidationErrors{{
			Field:   "body",
			Code:    models.CodeInvalidJSON,
			Message: "request body must be a JSON object",
		}}
	}
}

var errTrailingData = errors.New("unexpected data after JSON object")

func expectedType(field string) string {
	switch field {
	case "mood", "stress":
		return "integer"
	default:
		return "string"
	}
}

func optionalInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// recordReceipt stores a receipt. Store failures never affect the response.
func (s *Server) recordReceipt(rc models.Receipt) {
	if s.st == nil {
		return
	}
	rc.Time = time.Now().Unix()
	if err := s.st.AddReceipt(rc); err != nil {
		slog.Error("Server.recordReceipt: failed to store receipt", "request_id", rc.RequestID, "error", err)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.HealthResponse{Status: "ok"})
}

// statsHandler aggregates stored receipts.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if s.st == nil {
		writeJSONResponse(w, http.StatusOK, models.ComputeStats(nil))
		return
	}
	receipts, err := s.st.GetReceipts()
	if err != nil {
		slog.Error("Server.statsHandler: failed to load receipts", "error", err)
		writeError(w, http.StatusInternalServerError, models.ErrorTitleInternal, "Failed to load stats")
		return
	}
	slog.Debug("Server.statsHandler: aggregated receipts", "count", len(receipts))
	writeJSONResponse(w, http.StatusOK, models.ComputeStats(receipts))
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.notFoundHandler: no route", "method", r.Method, "path", r.URL.Path)
	writeError(w, http.StatusNotFound, models.ErrorTitleNotFound, "No route for "+r.URL.Path)
}

func (s *Server) methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	allow := http.MethodGet
	if strings.HasSuffix(r.URL.Path, "/feedback") {
		allow = http.MethodPost
	}
	w.Header().Set("Allow", allow)
	slog.Warn("Server.methodNotAllowedHandler: method not allowed", "method", r.Method, "path", r.URL.Path)
	writeError(w, http.StatusMethodNotAllowed, models.ErrorTitleMethod, r.Method+" is not supported on "+r.URL.Path)
}
