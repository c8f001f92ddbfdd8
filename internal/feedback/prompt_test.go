package feedback

import (
	"fmt"
	"strings"
	"testing"
)

func intPtr(i int) *int { return &i }

func TestBuildPrompt_ContextLines(t *testing.T) {
	tests := []struct {
		name       string
		mood       *int
		stress     *int
		wantMood   bool
		wantStress bool
	}{
		{name: "no ratings"},
		{name: "mood only", mood: intPtr(2), wantMood: true},
		{name: "stress only", stress: intPtr(6), wantStress: true},
		{name: "both ratings", mood: intPtr(5), stress: intPtr(1), wantMood: true, wantStress: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := BuildPrompt("今日は疲れた", "ja", tt.mood, tt.stress)
			if got := strings.Contains(p.UserMessage, "mood level:"); got != tt.wantMood {
				t.Errorf("mood line present = %v, want %v", got, tt.wantMood)
			}
			if got := strings.Contains(p.UserMessage, "stress level:"); got != tt.wantStress {
				t.Errorf("stress line present = %v, want %v", got, tt.wantStress)
			}
			if tt.mood != nil && !strings.Contains(p.UserMessage, fmt.Sprintf("mood level: %d/5", *tt.mood)) {
				t.Errorf("mood line does not carry the rating: %q", p.UserMessage)
			}
			if tt.stress != nil && !strings.Contains(p.UserMessage, fmt.Sprintf("stress level: %d/7", *tt.stress)) {
				t.Errorf("stress line does not carry the rating: %q", p.UserMessage)
			}
		})
	}
}

func TestBuildPrompt_ContainsJournalVerbatim(t *testing.T) {
	texts := []string{
		"a",
		"今日は疲れた",
		"line one\nline two\n\n  indented {\"json\": true} ```fence```",
		strings.Repeat("長", 1000),
	}
	for _, text := range texts {
		p := BuildPrompt(text, "en", intPtr(3), nil)
		if !strings.HasSuffix(p.UserMessage, "Journal:\n"+text) {
			t.Errorf("journal text not appended verbatim for input of length %d", len(text))
		}
	}
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	a := BuildPrompt("same entry", "ja", intPtr(4), intPtr(4))
	b := BuildPrompt("same entry", "ja", intPtr(4), intPtr(4))
	if a != b {
		t.Error("expected identical prompts for identical inputs")
	}
	if a.Version != PromptVersion {
		t.Errorf("expected version %q, got %q", PromptVersion, a.Version)
	}
	if !strings.Contains(a.UserMessage, "Language: ja") {
		t.Errorf("expected language in user message, got %q", a.UserMessage)
	}
	if a.SystemInstruction == "" || strings.Contains(a.SystemInstruction, "same entry") {
		t.Error("system instruction must be the fixed template")
	}
}
