package maintenance

import (
	"context"
	"sync"
	"testing"
	"time"

	logx "remindd/pkg/logx"
)

type fakeCompactor struct {
	mu    sync.Mutex
	calls []time.Duration
	n     int
}

func (f *fakeCompactor) Compact(ctx context.Context, olderThan time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, olderThan)
	return f.n, nil
}

func TestSweepUsesConfiguredRetention(t *testing.T) {
	fc := &fakeCompactor{n: 3}
	s := New(Config{RetentionDays: 90}, fc, logx.Nop())
	s.sweep()

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.calls) != 1 {
		t.Fatalf("Compact called %d times, want 1", len(fc.calls))
	}
	if want := 90 * 24 * time.Hour; fc.calls[0] != want {
		t.Fatalf("Compact olderThan = %v, want %v", fc.calls[0], want)
	}
}

func TestSweepSkippedWhenRetentionDisabled(t *testing.T) {
	fc := &fakeCompactor{}
	s := New(Config{RetentionDays: 0}, fc, logx.Nop())
	s.sweep()

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.calls) != 0 {
		t.Fatalf("Compact called %d times with retention disabled, want 0", len(fc.calls))
	}
}

func TestStartDisabledWithoutRetention(t *testing.T) {
	s := New(Config{RetentionDays: 0}, &fakeCompactor{}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	s.mu.Lock()
	running := s.c != nil
	s.mu.Unlock()
	if running {
		t.Fatal("cron started although retention is disabled")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	s := New(Config{RetentionDays: 30, Schedule: "@daily"}, &fakeCompactor{}, logx.Nop())
	ctx := context.Background()

	s.Start(ctx)
	s.mu.Lock()
	running := s.c != nil
	s.mu.Unlock()
	if !running {
		t.Fatal("cron not running after Start")
	}

	// Start is idempotent.
	s.Start(ctx)

	s.Stop(ctx)
	s.mu.Lock()
	running = s.c != nil
	s.mu.Unlock()
	if running {
		t.Fatal("cron still running after Stop")
	}
	// Stop is idempotent.
	s.Stop(ctx)
}

func TestStartFallsBackOnBadSchedule(t *testing.T) {
	s := New(Config{RetentionDays: 30, Schedule: "every day at breakfast"}, &fakeCompactor{}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	s.mu.Lock()
	running := s.c != nil
	s.mu.Unlock()
	if !running {
		t.Fatal("cron not running after falling back to the default schedule")
	}
}

func TestApplyRestartsOnChange(t *testing.T) {
	s := New(Config{RetentionDays: 30, Schedule: "@daily"}, &fakeCompactor{}, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	s.mu.Lock()
	before := s.c
	s.mu.Unlock()

	s.Apply(ctx, Config{RetentionDays: 60, Schedule: "@daily"})
	s.mu.Lock()
	after := s.c
	s.mu.Unlock()
	if after == nil {
		t.Fatal("cron not running after Apply")
	}
	if after == before {
		t.Fatal("Apply with changed retention kept the old cron")
	}

	// Unchanged config leaves the cron alone.
	s.Apply(ctx, Config{RetentionDays: 60, Schedule: "@daily"})
	s.mu.Lock()
	same := s.c
	s.mu.Unlock()
	if same != after {
		t.Fatal("Apply without changes restarted the cron")
	}
}
