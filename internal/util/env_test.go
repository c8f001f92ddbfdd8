package util

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{value: "", def: true, want: true},
		{value: "true", want: true},
		{value: " YES ", want: true},
		{value: "on", want: true},
		{value: "0", def: true, want: false},
		{value: "off", def: true, want: false},
		{value: "maybe", def: true, want: true},
	}
	for _, tt := range tests {
		t.Setenv("TEST_BOOL", tt.value)
		if got := ParseBoolEnv("TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := map[string]int{
		"":     20,
		"5":    5,
		" 42 ": 42,
		"0":    20,
		"-3":   20,
		"ten":  20,
	}
	for value, want := range tests {
		t.Setenv("TEST_INT", value)
		if got := ParseIntEnv("TEST_INT", 20); got != want {
			t.Errorf("ParseIntEnv(%q) = %d, want %d", value, got, want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := map[string]time.Duration{
		"":       time.Minute,
		"30s":    30 * time.Second,
		"2m":     2 * time.Minute,
		"45":     45 * time.Second,
		"0s":     time.Minute,
		"-1m":    time.Minute,
		"soon":   time.Minute,
		"1h30m0": time.Minute,
	}
	for value, want := range tests {
		t.Setenv("TEST_DURATION", value)
		if got := ParseDurationEnv("TEST_DURATION", time.Minute); got != want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", value, got, want)
		}
	}
}

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "http://localhost:5173", want: []string{"http://localhost:5173"}},
		{in: " https://a.example , ,https://b.example ", want: []string{"https://a.example", "https://b.example"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, SplitCSV(tt.in)); diff != "" {
			t.Errorf("SplitCSV(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
