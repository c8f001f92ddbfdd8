package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquire(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "receipts.db")

	lock, err := Acquire(resource)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	if lock.Path() != resource+Suffix {
		t.Errorf("Path = %q, want %q", lock.Path(), resource+Suffix)
	}
	content, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	if want := fmt.Sprintf("pid=%d\n", os.Getpid()); string(content) != want {
		t.Errorf("lock file content = %q, want %q", content, want)
	}
}

func TestAcquire_Conflict(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "receipts.db")

	first, err := Acquire(resource)
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer first.Release()

	second, err := Acquire(resource)
	if err == nil {
		second.Release()
		t.Fatal("second Acquire should fail while the lock is held")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockError, got %T", err)
	}
	if !strings.Contains(err.Error(), resource+Suffix) {
		t.Errorf("error should name the lock file: %v", err)
	}
	if !strings.Contains(lockErr.Holder, fmt.Sprintf("pid %d, running", os.Getpid())) {
		t.Errorf("expected holder to report this process, got %q", lockErr.Holder)
	}

	// The failed attempt must not clobber the holder's pid.
	content, _ := os.ReadFile(first.Path())
	if parsePID(string(content)) != os.Getpid() {
		t.Errorf("holder pid overwritten: %q", content)
	}
}

func TestRelease(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "nested", "receipts.db")

	lock, err := Acquire(resource)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed, stat err = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release should be a no-op: %v", err)
	}

	again, err := Acquire(resource)
	if err != nil {
		t.Fatalf("reacquire after release failed: %v", err)
	}
	again.Release()
}

func TestParsePID(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"pid=12345\n", 12345},
		{"pid=67890\nother=info", 67890},
		{"other=info", 0},
		{"", 0},
		{"pid=abc", 0},
		{"pid12345", 0},
	}
	for _, tt := range tests {
		if got := parsePID(tt.content); got != tt.want {
			t.Errorf("parsePID(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}

func TestProcessRunning(t *testing.T) {
	if !processRunning(os.Getpid()) {
		t.Error("current process should be reported as running")
	}
}
