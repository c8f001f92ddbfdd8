package api

import (
	"testing"
	"time"

	"github.com/nisiwa02/sleep-journal-app/internal/models"
	"github.com/nisiwa02/sleep-journal-app/internal/store"
)

func TestPruneReceiptsJob(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_ = st.AddReceipt(models.Receipt{RequestID: "old", Time: now.Add(-48 * time.Hour).Unix()})
	_ = st.AddReceipt(models.Receipt{RequestID: "edge", Time: now.Add(-24 * time.Hour).Unix()})
	_ = st.AddReceipt(models.Receipt{RequestID: "new", Time: now.Add(-time.Hour).Unix()})

	pruneReceiptsJob(st, 24*time.Hour, func() time.Time { return now })()

	got, _ := st.GetReceipts()
	if len(got) != 2 || got[0].RequestID != "edge" || got[1].RequestID != "new" {
		t.Errorf("unexpected receipts after prune: %+v", got)
	}
}

func TestPruneReceiptsJob_StoreFailure(t *testing.T) {
	// Failures are logged, never panicked.
	pruneReceiptsJob(&failingStore{}, time.Hour, time.Now)()
}

func TestStartRetention(t *testing.T) {
	st := store.NewInMemoryStore()
	_ = st.AddReceipt(models.Receipt{RequestID: "ancient", Time: 1})

	stop, err := startRetention(st, Opts{ReceiptRetention: time.Hour, PruneSchedule: "@hourly", ShutdownTimeout: time.Second})
	if err != nil {
		t.Fatalf("startRetention returned error: %v", err)
	}
	stop()

	if got, _ := st.GetReceipts(); len(got) != 0 {
		t.Errorf("expected an immediate prune on start, got %+v", got)
	}

	if _, err := startRetention(st, Opts{ReceiptRetention: time.Hour, PruneSchedule: "whenever"}); err == nil {
		t.Error("expected error for invalid schedule")
	}

	stop, err = startRetention(st, Opts{})
	if err != nil {
		t.Fatalf("disabled retention returned error: %v", err)
	}
	stop()
}
