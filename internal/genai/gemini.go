package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	googlegenai "google.golang.org/genai"

	"github.com/nisiwa02/sleep-journal-app/internal/models"
)

// contentGenerator is the subset of *genai.Models used by GeminiClient.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*googlegenai.Content, config *googlegenai.GenerateContentConfig) (*googlegenai.GenerateContentResponse, error)
}

// GeminiClient calls Gemini models through Vertex AI or the Gemini API.
type GeminiClient struct {
	models   contentGenerator
	provider string
	model    string
	config   googlegenai.GenerateContentConfig
}

func newGeminiClient(ctx context.Context, o Opts) (*GeminiClient, error) {
	cfg := &googlegenai.ClientConfig{}
	switch o.Provider {
	case ProviderVertex:
		if o.Project == "" {
			return nil, fmt.Errorf("GCP project is required for the vertex provider")
		}
		cfg.Backend = googlegenai.BackendVertexAI
		cfg.Project = o.Project
		cfg.Location = o.Location
	case ProviderGemini:
		if o.APIKey == "" {
			return nil, fmt.Errorf("API key is required for the gemini provider")
		}
		cfg.Backend = googlegenai.BackendGeminiAPI
		cfg.APIKey = o.APIKey
	}

	client, err := googlegenai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return newGeminiClientWith(client.Models, o), nil
}

func newGeminiClientWith(gen contentGenerator, o Opts) *GeminiClient {
	model := o.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	c := &GeminiClient{
		models:   gen,
		provider: o.Provider,
		model:    model,
		config: googlegenai.GenerateContentConfig{
			Temperature:     googlegenai.Ptr(float32(o.Temperature)),
			TopP:            googlegenai.Ptr(float32(o.TopP)),
			MaxOutputTokens: int32(o.MaxOutputTokens),
		},
	}
	if o.StructuredOutput {
		c.config.ResponseMIMEType = "application/json"
		if o.ResponseSchema != nil {
			c.config.ResponseJsonSchema = o.ResponseSchema
		}
	}
	return c
}

// Provider returns "vertex" or "gemini".
func (c *GeminiClient) Provider() string { return c.provider }

// Model returns the model name.
func (c *GeminiClient) Model() string { return c.model }

// Invoke sends one generation request and returns the concatenated reply text.
func (c *GeminiClient) Invoke(ctx context.Context, systemInstruction, userMessage string) (string, error) {
	const op = "genai.GeminiClient.Invoke"

	config := c.config
	config.SystemInstruction = &googlegenai.Content{Parts: []*googlegenai.Part{{Text: systemInstruction}}}
	contents := []*googlegenai.Content{googlegenai.NewContentFromText(userMessage, googlegenai.RoleUser)}

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.model, contents, &config)
	if err != nil {
		slog.Warn("GeminiClient.Invoke: generate content failed", "model", c.model, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return "", models.NewError(models.KindModelUnavailable, op, err)
	}

	text, err := candidateText(resp)
	if err != nil {
		slog.Warn("GeminiClient.Invoke: empty model response", "model", c.model, "error", err)
		return "", models.NewError(models.KindModelEmptyResponse, op, err)
	}
	slog.Debug("GeminiClient.Invoke: model responded", "model", c.model, "response_length", len(text), "duration_ms", time.Since(start).Milliseconds())
	return text, nil
}

// candidateText joins the non-thought text parts of the first candidate.
func candidateText(resp *googlegenai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: prompt blocked: %s", ErrNoChoicesReturned, resp.PromptFeedback.BlockReason)
		}
		return "", ErrNoChoicesReturned
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", fmt.Errorf("%w: finish reason %s", ErrEmptyContent, cand.FinishReason)
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("%w: finish reason %s", ErrEmptyContent, cand.FinishReason)
	}
	return b.String(), nil
}
