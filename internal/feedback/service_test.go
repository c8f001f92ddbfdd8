package feedback

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/nisiwa02/sleep-journal-app/internal/models"
	"github.com/nisiwa02/sleep-journal-app/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubModelClient implements ModelClient for testing.
type stubModelClient struct {
	text   string
	err    error
	delay  time.Duration
	ignore bool // ignore context cancellation while delaying

	gotSystem string
	gotUser   string
	calls     int
}

func (s *stubModelClient) Invoke(ctx context.Context, systemInstruction, userMessage string) (string, error) {
	s.calls++
	s.gotSystem = systemInstruction
	s.gotUser = userMessage
	if s.delay > 0 {
		if s.ignore {
			time.Sleep(s.delay)
		} else {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return "", models.NewError(models.KindModelUnavailable, "stub", ctx.Err())
			}
		}
	}
	return s.text, s.err
}

func (s *stubModelClient) Provider() string { return "stub" }
func (s *stubModelClient) Model() string    { return "stub-model" }

func TestServiceGenerate_Success(t *testing.T) {
	stub := &stubModelClient{text: "```json\n" + validJSON + "\n```"}
	svc := NewService(stub)

	mood := 2
	got, err := svc.Generate(context.Background(), models.FeedbackRequest{
		JournalText: "今日は疲れた",
		Mood:        &mood,
		Language:    "ja",
		Timezone:    "Asia/Tokyo",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(tiringDay(), got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if stub.calls != 1 {
		t.Errorf("expected exactly one model call, got %d", stub.calls)
	}
	if !strings.Contains(stub.gotUser, "今日は疲れた") || !strings.Contains(stub.gotUser, "mood level: 2/5") {
		t.Errorf("unexpected user message: %q", stub.gotUser)
	}
	if strings.Contains(stub.gotUser, "stress level") {
		t.Errorf("stress line must be omitted when stress is absent")
	}
	if stub.gotSystem != BuildPrompt("", "", nil, nil).SystemInstruction {
		t.Error("expected the fixed system instruction")
	}
}

func TestServiceGenerate_Failures(t *testing.T) {
	tests := []struct {
		name     string
		stub     *stubModelClient
		wantKind models.ErrorKind
	}{
		{
			name:     "model unavailable propagated",
			stub:     &stubModelClient{err: models.NewError(models.KindModelUnavailable, "stub", errors.New("connection refused"))},
			wantKind: models.KindModelUnavailable,
		},
		{
			name:     "empty response propagated",
			stub:     &stubModelClient{err: models.NewError(models.KindModelEmptyResponse, "stub", errors.New("no candidates"))},
			wantKind: models.KindModelEmptyResponse,
		},
		{
			name:     "unclassified client error is unavailable",
			stub:     &stubModelClient{err: errors.New("socket closed")},
			wantKind: models.KindModelUnavailable,
		},
		{
			name:     "prose response is malformed",
			stub:     &stubModelClient{text: "I am unable to produce JSON today."},
			wantKind: models.KindMalformedResponse,
		},
		{
			name:     "missing field is malformed",
			stub:     &stubModelClient{text: `{"empathic_feedback":"e","tags":[],"risk_score":0.1,"next_actions":[]}`},
			wantKind: models.KindMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.stub)
			got, err := svc.Generate(context.Background(), models.FeedbackRequest{JournalText: "x", Language: "ja"})
			if err == nil {
				t.Fatalf("expected error, got %+v", got)
			}
			if got != nil {
				t.Errorf("expected no partial result, got %+v", got)
			}
			if kind := models.KindOf(err); kind != tt.wantKind {
				t.Errorf("expected kind %q, got %q (%v)", tt.wantKind, kind, err)
			}
		})
	}
}

func TestServiceGenerate_RejectedOutputNotLogged(t *testing.T) {
	const rawOutput = "PRIVATE-MODEL-PROSE about the entry"
	logs := testutil.CaptureLogs(t)

	svc := NewService(&stubModelClient{text: rawOutput})
	if _, err := svc.Generate(context.Background(), models.FeedbackRequest{JournalText: "secret journal", Language: "ja"}); err == nil {
		t.Fatal("expected malformed response error")
	}

	testutil.AssertNotLogged(t, logs, rawOutput, "secret journal")
	if !strings.Contains(logs.String(), "raw_length=") {
		t.Errorf("expected raw_length metadata in logs:\n%s", logs.String())
	}
}

func TestServiceGenerate_TimeoutIsUnavailable(t *testing.T) {
	stub := &stubModelClient{text: validJSON, delay: time.Second}
	svc := NewService(stub, WithModelTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := svc.Generate(context.Background(), models.FeedbackRequest{JournalText: "x", Language: "ja"})
	if !errors.Is(err, models.ErrModelUnavailable) {
		t.Fatalf("expected model unavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("expected Generate to stop waiting at the timeout, took %v", elapsed)
	}
}

func TestServiceGenerate_AbandonsClientIgnoringCancellation(t *testing.T) {
	stub := &stubModelClient{text: validJSON, delay: 150 * time.Millisecond, ignore: true}
	svc := NewService(stub, WithModelTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := svc.Generate(context.Background(), models.FeedbackRequest{JournalText: "x", Language: "ja"})
	if !errors.Is(err, models.ErrModelUnavailable) {
		t.Fatalf("expected model unavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 150*time.Millisecond {
		t.Errorf("expected Generate to return before the client finished, took %v", elapsed)
	}
	// Let the abandoned call drain so the leak check stays clean.
	time.Sleep(200 * time.Millisecond)
}

func TestServiceGenerate_CallerCancellation(t *testing.T) {
	stub := &stubModelClient{text: validJSON, delay: time.Second}
	svc := NewService(stub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Generate(ctx, models.FeedbackRequest{JournalText: "x", Language: "ja"})
	if !errors.Is(err, models.ErrModelUnavailable) {
		t.Fatalf("expected model unavailable after cancellation, got %v", err)
	}
}

func TestServiceDescribe(t *testing.T) {
	svc := NewService(&stubModelClient{})
	if svc.Provider() != "stub" || svc.Model() != "stub-model" {
		t.Errorf("unexpected description %q/%q", svc.Provider(), svc.Model())
	}
	if svc.PromptVersion() != PromptVersion {
		t.Errorf("unexpected prompt version %q", svc.PromptVersion())
	}

	type bare struct{ ModelClient }
	if got := NewService(bare{}).Provider(); got != "unknown" {
		t.Errorf("expected unknown provider, got %q", got)
	}
}
