package scheduler

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSchedulerAddJob(t *testing.T) {
	s := New()
	defer s.Stop(context.Background())

	for _, expr := range []string{"* * * * *", "0 3 * * *", "@hourly", "@every 10m"} {
		if err := s.AddJob("noop", expr, func() {}); err != nil {
			t.Errorf("AddJob(%q) returned error: %v", expr, err)
		}
	}
}

func TestSchedulerAddJob_InvalidExpression(t *testing.T) {
	s := New()
	defer s.Stop(context.Background())

	for _, expr := range []string{"", "not a cron", "* * * * * *", "61 * * * *"} {
		if err := s.AddJob("noop", expr, func() {}); err == nil {
			t.Errorf("AddJob(%q) should fail", expr)
		}
	}
}

func TestSchedulerRunsAndRecovers(t *testing.T) {
	s := New()
	ran := make(chan struct{}, 4)
	if err := s.AddJob("panics", "@every 1s", func() { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	if err := s.AddJob("ticks", "@every 1s", func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Error("job did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
}
