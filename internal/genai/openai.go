package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nisiwa02/sleep-journal-app/internal/models"
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIClient wraps the OpenAI chat completion service.
type OpenAIClient struct {
	chat            chatService
	model           string
	temperature     float64
	topP            float64
	maxOutputTokens int
	schemaName      string
	schema          map[string]any
	structured      bool
}

func newOpenAIClient(o Opts) (*OpenAIClient, error) {
	if o.APIKey == "" {
		return nil, fmt.Errorf("API key is required for the openai provider")
	}
	cli := openai.NewClient(option.WithAPIKey(o.APIKey))
	return newOpenAIClientWith(&cli.Chat.Completions, o), nil
}

func newOpenAIClientWith(chat chatService, o Opts) *OpenAIClient {
	model := o.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	name := o.SchemaName
	if name == "" {
		name = "response"
	}
	return &OpenAIClient{
		chat:            chat,
		model:           model,
		temperature:     o.Temperature,
		topP:            o.TopP,
		maxOutputTokens: o.MaxOutputTokens,
		schemaName:      name,
		schema:          o.ResponseSchema,
		structured:      o.StructuredOutput,
	}
}

// Provider returns "openai".
func (c *OpenAIClient) Provider() string { return ProviderOpenAI }

// Model returns the model name.
func (c *OpenAIClient) Model() string { return c.model }

func (c *OpenAIClient) params(systemInstruction, userMessage string) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemInstruction),
			openai.UserMessage(userMessage),
		},
		Temperature:         openai.Float(c.temperature),
		TopP:                openai.Float(c.topP),
		MaxCompletionTokens: openai.Int(int64(c.maxOutputTokens)),
	}
	if !c.structured {
		return params
	}
	if c.schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   c.schemaName,
					Schema: c.schema,
					Strict: openai.Bool(true),
				},
			},
		}
	} else {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

// Invoke sends one chat completion request and returns the first choice's content.
func (c *OpenAIClient) Invoke(ctx context.Context, systemInstruction, userMessage string) (string, error) {
	const op = "genai.OpenAIClient.Invoke"

	start := time.Now()
	resp, err := c.chat.New(ctx, c.params(systemInstruction, userMessage))
	if err != nil {
		slog.Warn("OpenAIClient.Invoke: chat completion failed", "model", c.model, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return "", models.NewError(models.KindModelUnavailable, op, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", models.NewError(models.KindModelEmptyResponse, op, ErrNoChoicesReturned)
	}

	choice := resp.Choices[0]
	if strings.TrimSpace(choice.Message.Content) == "" {
		if choice.Message.Refusal != "" {
			return "", models.NewError(models.KindModelEmptyResponse, op, fmt.Errorf("%w: model refused", ErrEmptyContent))
		}
		return "", models.NewError(models.KindModelEmptyResponse, op, fmt.Errorf("%w: finish reason %s", ErrEmptyContent, choice.FinishReason))
	}
	slog.Debug("OpenAIClient.Invoke: model responded", "model", c.model, "response_length", len(choice.Message.Content), "duration_ms", time.Since(start).Milliseconds())
	return choice.Message.Content, nil
}
