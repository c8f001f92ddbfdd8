// Package genai provides model clients for the feedback pipeline backed by
// Vertex AI, the Gemini API or OpenAI.
package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Supported providers.
const (
	ProviderVertex = "vertex"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Generation defaults.
const (
	DefaultGeminiModel     = "gemini-2.5-flash"
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultLocation        = "asia-northeast1"
	DefaultTemperature     = 0.7
	DefaultTopP            = 0.95
	DefaultMaxOutputTokens = 1024
)

var (
	// ErrNoChoicesReturned is wrapped when the model returns no usable candidate.
	ErrNoChoicesReturned = errors.New("no choices returned")
	// ErrEmptyContent is wrapped when the model returns a candidate without text.
	ErrEmptyContent = errors.New("empty content")
)

// Client invokes a remote model once per call. Errors are *models.Error values
// of kind KindModelUnavailable or KindModelEmptyResponse.
type Client interface {
	Invoke(ctx context.Context, systemInstruction, userMessage string) (string, error)
	Provider() string
	Model() string
}

// Opts holds configuration for a model client.
type Opts struct {
	Provider         string
	APIKey           string
	Project          string
	Location         string
	Model            string
	Temperature      float64
	TopP             float64
	MaxOutputTokens  int
	ResponseSchema   map[string]any
	SchemaName       string
	StructuredOutput bool
}

// Option configures a model client.
type Option func(*Opts)

// WithProvider selects the backend: vertex, gemini or openai.
func WithProvider(provider string) Option {
	return func(o *Opts) {
		o.Provider = provider
	}
}

// WithAPIKey sets the API key for the gemini and openai providers.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithProject sets the Google Cloud project for the vertex provider.
func WithProject(project string) Option {
	return func(o *Opts) {
		o.Project = project
	}
}

// WithLocation sets the Google Cloud region for the vertex provider.
func WithLocation(location string) Option {
	return func(o *Opts) {
		o.Location = location
	}
}

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(o *Opts) {
		o.Temperature = temp
	}
}

// WithTopP sets nucleus sampling.
func WithTopP(topP float64) Option {
	return func(o *Opts) {
		o.TopP = topP
	}
}

// WithMaxOutputTokens caps the reply length.
func WithMaxOutputTokens(n int) Option {
	return func(o *Opts) {
		o.MaxOutputTokens = n
	}
}

// WithResponseSchema requests schema-guided JSON output using the given schema.
func WithResponseSchema(name string, schema map[string]any) Option {
	return func(o *Opts) {
		o.SchemaName = name
		o.ResponseSchema = schema
	}
}

// WithStructuredOutput toggles schema-guided output. Off means plain text replies.
func WithStructuredOutput(enabled bool) Option {
	return func(o *Opts) {
		o.StructuredOutput = enabled
	}
}

func defaultOpts() Opts {
	return Opts{
		Provider:         ProviderVertex,
		Location:         DefaultLocation,
		Temperature:      DefaultTemperature,
		TopP:             DefaultTopP,
		MaxOutputTokens:  DefaultMaxOutputTokens,
		StructuredOutput: true,
	}
}

func applyOpts(opts []Option) Opts {
	o := defaultOpts()
	for _, opt := range opts {
		opt(&o)
	}
	o.Provider = strings.ToLower(strings.TrimSpace(o.Provider))
	return o
}

// NewClient builds the client for the configured provider.
func NewClient(ctx context.Context, opts ...Option) (Client, error) {
	o := applyOpts(opts)
	switch o.Provider {
	case ProviderVertex, ProviderGemini:
		return newGeminiClient(ctx, o)
	case ProviderOpenAI:
		return newOpenAIClient(o)
	default:
		return nil, fmt.Errorf("unknown model provider %q", o.Provider)
	}
}
