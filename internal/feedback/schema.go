package feedback

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/nisiwa02/sleep-journal-app/internal/models"
)

// ResponseSchemaName names the schema when a provider requires one.
const ResponseSchemaName = "journal_feedback"

var (
	responseSchemaOnce sync.Once
	responseSchema     map[string]any
	responseSchemaErr  error
)

// ResponseSchema returns the JSON schema of models.FeedbackResult for providers that
// support schema-guided generation. Callers must not mutate the returned map.
// Guided output still goes through Normalize.
func ResponseSchema() (map[string]any, error) {
	responseSchemaOnce.Do(func() {
		responseSchema, responseSchemaErr = buildResponseSchema()
	})
	return responseSchema, responseSchemaErr
}

func buildResponseSchema() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(&models.FeedbackResult{})

	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode response schema: %w", err)
	}

	// Providers reject the meta keys on a response schema.
	delete(m, "$schema")
	delete(m, "$id")
	m["additionalProperties"] = false

	props, ok := m["properties"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("response schema has no properties")
	}
	// A pointer reflects as a plain string; the model must be allowed to send null.
	if note, ok := props["safety_note"].(map[string]any); ok {
		note["type"] = []any{"string", "null"}
	}
	required := make([]any, 0, len(props))
	for _, name := range []string{"summary", "empathic_feedback", "tags", "risk_score", "next_actions", "safety_note"} {
		if _, ok := props[name]; !ok {
			return nil, fmt.Errorf("response schema is missing property %q", name)
		}
		required = append(required, name)
	}
	m["required"] = required
	return m, nil
}
