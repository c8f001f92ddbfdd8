package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nisiwa02/sleep-journal-app/internal/models"
)

func TestWriteJSONResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSONResponse(rr, http.StatusOK, models.HealthResponse{Status: "ok"})

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("unexpected content type %q", ct)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("expected Cache-Control: no-store, got %q", cc)
	}
	if rr.Body.String() != `{"status":"ok"}` {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
}

func TestWriteJSONResponse_MarshalFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSONResponse(rr, http.StatusOK, map[string]any{"bad": make(chan int)})

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
	var got models.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("fallback body is not JSON: %v", err)
	}
	if diff := cmp.Diff(models.InternalError(), got); diff != "" {
		t.Errorf("fallback mismatch (-want +got):\n%s", diff)
	}
}

func TestErrorEnvelopes(t *testing.T) {
	violations := models.ValidationErrors{{Field: "mood", Code: models.CodeTooBig, Message: "mood must be less than or equal to 5"}}

	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		want       models.ErrorResponse
	}{
		{
			name:       "error with message",
			write:      func(w http.ResponseWriter) { writeError(w, http.StatusForbidden, models.ErrorTitleForbidden, "Origin not allowed") },
			wantStatus: http.StatusForbidden,
			want:       models.ErrorWithMessage(models.ErrorTitleForbidden, "Origin not allowed"),
		},
		{
			name:       "validation",
			write:      func(w http.ResponseWriter) { writeValidationError(w, violations) },
			wantStatus: http.StatusBadRequest,
			want:       models.ValidationFailed(violations),
		},
		{
			name:       "internal",
			write:      writeInternalError,
			wantStatus: http.StatusInternalServerError,
			want:       models.InternalError(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.write(rr)
			if rr.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			if diff := cmp.Diff(tt.want, decodeError(t, rr)); diff != "" {
				t.Errorf("envelope mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
