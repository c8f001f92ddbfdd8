package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nisiwa02/sleep-journal-app/internal/models"
)

// fallbackBody is written when a response cannot be encoded.
var fallbackBody = mustMarshal(models.InternalError())

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic("api: cannot marshal fallback response: " + err.Error())
	}
	return data
}

// writeJSONResponse encodes body before touching the header so an encoding
// failure still turns into a 500 envelope. Bodies may be derived from journal
// text, so no response is cacheable.
func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal response", "error", err, "status", statusCode)
		data = fallbackBody
		statusCode = http.StatusInternalServerError
	}

	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	if _, err := w.Write(data); err != nil {
		slog.Debug("Server.writeJSONResponse: client went away", "error", err)
	}
}

// writeError writes the {error, message} envelope.
func writeError(w http.ResponseWriter, statusCode int, title, message string) {
	writeJSONResponse(w, statusCode, models.ErrorWithMessage(title, message))
}

// writeValidationError writes a 400 listing every violated field.
func writeValidationError(w http.ResponseWriter, violations models.ValidationErrors) {
	writeJSONResponse(w, http.StatusBadRequest, models.ValidationFailed(violations))
}

// writeInternalError writes the generic 500 envelope. Internal detail stays in
// the logs.
func writeInternalError(w http.ResponseWriter) {
	writeJSONResponse(w, http.StatusInternalServerError, models.InternalError())
}
