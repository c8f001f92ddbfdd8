package testutil

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"
)

// mockTestingT records failures instead of failing the enclosing test.
type mockTestingT struct {
	errors   []string
	fatals   []string
	cleanups []func()
}

func (m *mockTestingT) Helper() {}

func (m *mockTestingT) Errorf(format string, args ...any) {
	m.errors = append(m.errors, fmt.Sprintf(format, args...))
}

func (m *mockTestingT) Fatalf(format string, args ...any) {
	m.fatals = append(m.fatals, fmt.Sprintf(format, args...))
}

func (m *mockTestingT) Cleanup(f func()) {
	m.cleanups = append(m.cleanups, f)
}

func (m *mockTestingT) runCleanups() {
	for i := len(m.cleanups) - 1; i >= 0; i-- {
		m.cleanups[i]()
	}
}

func TestCaptureLogs(t *testing.T) {
	prev := slog.Default()
	mock := &mockTestingT{}

	logs := CaptureLogs(mock)
	slog.Debug("captured", "k", "v")
	if !strings.Contains(logs.String(), "msg=captured k=v") {
		t.Errorf("expected debug record in buffer, got %q", logs.String())
	}

	mock.runCleanups()
	if slog.Default() != prev {
		t.Error("expected previous logger to be restored")
	}
}

func TestAssertNotLogged(t *testing.T) {
	logs := &LogBuffer{}
	fmt.Fprint(logs, "level=INFO msg=ok text_length=12")

	mock := &mockTestingT{}
	AssertNotLogged(mock, logs, "secret diary", "")
	if len(mock.errors) != 0 {
		t.Errorf("unexpected failures: %v", mock.errors)
	}

	AssertNotLogged(mock, logs, "text_length")
	if len(mock.errors) != 1 {
		t.Errorf("expected one failure, got %v", mock.errors)
	}
}

func TestMustMarshalJSON(t *testing.T) {
	mock := &mockTestingT{}
	if got := string(MustMarshalJSON(mock, map[string]int{"a": 1})); got != `{"a":1}` {
		t.Errorf("unexpected JSON %s", got)
	}
	MustMarshalJSON(mock, make(chan int))
	if len(mock.fatals) != 1 {
		t.Errorf("expected a fatal for unmarshalable value, got %v", mock.fatals)
	}
}

func TestMustUnmarshalJSON(t *testing.T) {
	mock := &mockTestingT{}
	var v struct{ A int }
	MustUnmarshalJSON(mock, []byte(`{"A":3}`), &v)
	if v.A != 3 || len(mock.fatals) != 0 {
		t.Errorf("unexpected result %+v, fatals %v", v, mock.fatals)
	}
	MustUnmarshalJSON(mock, []byte(`{`), &v)
	if len(mock.fatals) != 1 {
		t.Errorf("expected a fatal for invalid JSON, got %v", mock.fatals)
	}
}

func TestJournalText(t *testing.T) {
	for _, n := range []int{0, 1, 1000, 1001} {
		got := JournalText(n)
		if utf8.RuneCountInString(got) != n {
			t.Errorf("JournalText(%d) has %d characters", n, utf8.RuneCountInString(got))
		}
	}
	if s := JournalText(10); len(s) == utf8.RuneCountInString(s) {
		t.Error("expected multi-byte characters")
	}
}
