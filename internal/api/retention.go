package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/nisiwa02/sleep-journal-app/internal/scheduler"
	"github.com/nisiwa02/sleep-journal-app/internal/store"
)

// Receipt retention defaults.
const (
	DefaultReceiptRetention = 30 * 24 * time.Hour
	DefaultPruneSchedule    = "@hourly"
)

// pruneReceiptsJob deletes receipts older than retention on each run.
func pruneReceiptsJob(st store.Store, retention time.Duration, now func() time.Time) func() {
	return func() {
		cutoff := now().Add(-retention).Unix()
		removed, err := st.PruneReceipts(cutoff)
		if err != nil {
			slog.Error("pruneReceiptsJob: prune failed", "error", err)
			return
		}
		slog.Info("pruneReceiptsJob: pruned receipts", "removed", removed, "cutoff", cutoff)
	}
}

// startRetention schedules receipt pruning. The returned stop function waits
// for a running prune up to the shutdown timeout.
func startRetention(st store.Store, cfg Opts) (func(), error) {
	if cfg.ReceiptRetention <= 0 {
		slog.Info("startRetention: receipt retention disabled")
		return func() {}, nil
	}
	sched := scheduler.New()
	job := pruneReceiptsJob(st, cfg.ReceiptRetention, time.Now)
	if err := sched.AddJob("prune-receipts", cfg.PruneSchedule, job); err != nil {
		sched.Stop(context.Background())
		return nil, err
	}
	// Apply the retention window right away rather than at the first tick.
	job()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		sched.Stop(ctx)
	}, nil
}
