package feedback

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nisiwa02/sleep-journal-app/internal/models"
)

// DefaultModelTimeout bounds how long Generate waits for the model.
const DefaultModelTimeout = 30 * time.Second

// ModelClient invokes a remote text-generation capability once per call.
// Implementations return *models.Error values of kind KindModelUnavailable or
// KindModelEmptyResponse and must not retry.
type ModelClient interface {
	Invoke(ctx context.Context, systemInstruction, userMessage string) (string, error)
}

// ModelDescriber is implemented by clients that can name their provider and model.
type ModelDescriber interface {
	Provider() string
	Model() string
}

// Service composes BuildPrompt, the model client and Normalize.
type Service struct {
	client  ModelClient
	timeout time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithModelTimeout sets how long Generate waits for the model before giving up.
func WithModelTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService creates a Service around an injected model client.
func NewService(client ModelClient, opts ...ServiceOption) *Service {
	s := &Service{client: client, timeout: DefaultModelTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provider returns the provider name of the underlying client, or "unknown".
func (s *Service) Provider() string {
	if d, ok := s.client.(ModelDescriber); ok {
		return d.Provider()
	}
	return "unknown"
}

// Model returns the model name of the underlying client, or "unknown".
func (s *Service) Model() string {
	if d, ok := s.client.(ModelDescriber); ok {
		return d.Model()
	}
	return "unknown"
}

// PromptVersion returns the version of the prompt template in use.
func (s *Service) PromptVersion() string {
	return PromptVersion
}

type invokeResult struct {
	text string
	err  error
}

// Generate produces feedback for a validated request. It fails with the first
// error encountered: KindModelUnavailable, KindModelEmptyResponse or
// KindMalformedResponse. Nothing is cached and no partial result is returned.
//
// The model call runs under the service timeout. If the client does not honour
// cancellation, Generate stops waiting at the deadline and the call finishes in
// the background.
func (s *Service) Generate(ctx context.Context, req models.FeedbackRequest) (*models.FeedbackResult, error) {
	const op = "feedback.Service.Generate"
	prompt := BuildPrompt(req.JournalText, req.Language, req.Mood, req.Stress)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan invokeResult, 1)
	go func() {
		text, err := s.client.Invoke(ctx, prompt.SystemInstruction, prompt.UserMessage)
		done <- invokeResult{text: text, err: err}
	}()

	var res invokeResult
	select {
	case res = <-done:
	case <-ctx.Done():
		slog.Warn("Service.Generate: abandoned model call", "error", ctx.Err(), "timeout", s.timeout)
		return nil, models.NewError(models.KindModelUnavailable, op, ctx.Err())
	}

	if res.err != nil {
		return nil, classifyInvokeError(op, res.err)
	}

	result, err := Normalize(res.text)
	if err != nil {
		slog.Debug("Service.Generate: model output rejected", "error", err, "raw_length", len(res.text))
		return nil, err
	}
	return result, nil
}

// classifyInvokeError keeps kinded client errors and maps anything else to
// KindModelUnavailable.
func classifyInvokeError(op string, err error) error {
	var kinded *models.Error
	if errors.As(err, &kinded) {
		return err
	}
	return models.NewError(models.KindModelUnavailable, op, err)
}
