package feedback

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/nisiwa02/sleep-journal-app/internal/models"
)

const normalizeOp = "feedback.Normalize"

// Normalize extracts a FeedbackResult from raw model text.
//
// The text is trimmed, a surrounding fenced code block is removed, and the first
// balanced {...} object is preferred over the whole text when one exists. The
// decoded object must carry non-empty summary and empathic_feedback strings,
// string arrays for tags and next_actions, and a numeric risk_score. safety_note
// may be absent or null. risk_score is not clamped.
//
// Every failure is a models.KindMalformedResponse error. Error messages describe
// the defect only and never echo the model text.
func Normalize(raw string) (*models.FeedbackResult, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, models.Errorf(models.KindMalformedResponse, normalizeOp, "empty model response")
	}

	text = stripCodeFence(text)
	if obj, ok := findJSONObject(text); ok {
		text = obj
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, models.Errorf(models.KindMalformedResponse, normalizeOp, "response is not a JSON object: %v", jsonErrorSummary(err))
	}
	if fields == nil {
		return nil, models.Errorf(models.KindMalformedResponse, normalizeOp, "response is not a JSON object")
	}

	var (
		result models.FeedbackResult
		err    error
	)
	if result.Summary, err = requiredString(fields, "summary"); err != nil {
		return nil, err
	}
	if result.EmpathicFeedback, err = requiredString(fields, "empathic_feedback"); err != nil {
		return nil, err
	}
	if result.Tags, err = requiredStringArray(fields, "tags"); err != nil {
		return nil, err
	}
	if result.RiskScore, err = requiredNumber(fields, "risk_score"); err != nil {
		return nil, err
	}
	if result.NextActions, err = requiredStringArray(fields, "next_actions"); err != nil {
		return nil, err
	}
	if result.SafetyNote, err = optionalString(fields, "safety_note"); err != nil {
		return nil, err
	}
	return &result, nil
}

// stripCodeFence removes a leading ``` or ```json (any tag) line and a trailing ```.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		if tag := strings.TrimSpace(body[:nl]); !strings.ContainsAny(tag, "{[") {
			body = body[nl+1:]
		}
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	body = strings.TrimRight(body, " \t\r\n")
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

// findJSONObject returns the first substring that starts at a '{' and ends at its
// matching '}'. Braces inside JSON string literals are ignored. When a '{' never
// closes, the scan restarts at the next '{'.
func findJSONObject(text string) (string, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end, ok := matchBrace(text, start); ok {
			return text[start : end+1], true
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the '}' closing the '{' at start.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func requiredString(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return "", models.Errorf(models.KindMalformedResponse, normalizeOp, "missing required field %q", name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", models.Errorf(models.KindMalformedResponse, normalizeOp, "field %q must be a string", name)
	}
	if strings.TrimSpace(s) == "" {
		return "", models.Errorf(models.KindMalformedResponse, normalizeOp, "field %q must not be empty", name)
	}
	return s, nil
}

func requiredStringArray(fields map[string]json.RawMessage, name string) ([]string, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return nil, models.Errorf(models.KindMalformedResponse, normalizeOp, "missing required field %q", name)
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, models.Errorf(models.KindMalformedResponse, normalizeOp, "field %q must be an array of strings", name)
	}
	return items, nil
}

func requiredNumber(fields map[string]json.RawMessage, name string) (float64, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return 0, models.Errorf(models.KindMalformedResponse, normalizeOp, "missing required field %q", name)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, models.Errorf(models.KindMalformedResponse, normalizeOp, "field %q must be a number", name)
	}
	return f, nil
}

func optionalString(fields map[string]json.RawMessage, name string) (*string, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, models.Errorf(models.KindMalformedResponse, normalizeOp, "field %q must be a string or null", name)
	}
	return &s, nil
}

// jsonErrorSummary reduces a decode error to its category so that no fragment of
// the model text leaks into logs.
func jsonErrorSummary(err error) string {
	switch err.(type) {
	case *json.SyntaxError:
		return "syntax error"
	case *json.UnmarshalTypeError:
		return "unexpected JSON type"
	default:
		return "decode failure"
	}
}
