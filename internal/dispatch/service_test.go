package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

type fakeLauncher struct {
	mu      sync.Mutex
	opened  []string
	browser []string
	sounds  []string

	openErr  error
	soundErr error

	// When gate is non-nil OpenURL blocks until it is closed; started gets a
	// token each time OpenURL is entered.
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeLauncher) OpenURL(ctx context.Context, url, browserPath string) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = append(f.opened, url)
	f.browser = append(f.browser, browserPath)
	return nil
}

func (f *fakeLauncher) PlaySound(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.soundErr != nil {
		return f.soundErr
	}
	f.sounds = append(f.sounds, path)
	return nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []reminder.Entry
	ch      chan reminder.Entry
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{ch: make(chan reminder.Entry, 32)}
}

func (f *fakeRecorder) Append(ctx context.Context, e reminder.Entry) error {
	f.mu.Lock()
	f.entries = append(f.entries, e)
	f.mu.Unlock()
	f.ch <- e
	return nil
}

func waitEntry(t *testing.T, rec *fakeRecorder) reminder.Entry {
	t.Helper()
	select {
	case e := <-rec.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a history entry")
		return reminder.Entry{}
	}
}

func TestDispatchRecordsSuccess(t *testing.T) {
	fl := &fakeLauncher{}
	rec := newFakeRecorder()
	s := New(Config{Workers: 1}, fl, rec, nil, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	err := s.Dispatch(reminder.Trigger{
		URL:         "https://example.com/board",
		BrowserPath: "/opt/firefox",
		SoundPath:   "/tmp/ping.wav",
		Index:       1,
		At:          at,
		ExpectedSec: 60,
		ActualSec:   61,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	e := waitEntry(t, rec)
	if e.Outcome != reminder.OutcomeSuccess {
		t.Fatalf("Outcome = %q, want success", e.Outcome)
	}
	if e.Index != 1 || e.URL != "https://example.com/board" || !e.At.Equal(at) {
		t.Fatalf("entry = %+v, want trigger fields carried over", e)
	}
	if e.ExpectedSec != 60 || e.ActualSec != 61 {
		t.Fatalf("entry gaps = %d/%d, want 60/61", e.ExpectedSec, e.ActualSec)
	}

	fl.mu.Lock()
	defer fl.mu.Unlock()
	if len(fl.opened) != 1 || fl.opened[0] != "https://example.com/board" {
		t.Fatalf("opened = %v, want the trigger URL", fl.opened)
	}
	if fl.browser[0] != "/opt/firefox" {
		t.Fatalf("browser = %q, want the configured path", fl.browser[0])
	}
	if len(fl.sounds) != 1 || fl.sounds[0] != "/tmp/ping.wav" {
		t.Fatalf("sounds = %v, want the configured file", fl.sounds)
	}
}

func TestOpenFailureRecordsFailedEntry(t *testing.T) {
	fl := &fakeLauncher{openErr: errors.New("browser missing")}
	rec := newFakeRecorder()
	s := New(Config{Workers: 1}, fl, rec, nil, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Dispatch(reminder.Trigger{URL: "https://example.com", Index: 3}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	e := waitEntry(t, rec)
	if e.Outcome != reminder.OutcomeFailed {
		t.Fatalf("Outcome = %q, want failed", e.Outcome)
	}
	if e.Index != 3 {
		t.Fatalf("Index = %d, want 3", e.Index)
	}
}

func TestSoundFailureRecordsFailedEntry(t *testing.T) {
	fl := &fakeLauncher{soundErr: errors.New("no player")}
	rec := newFakeRecorder()
	s := New(Config{Workers: 1}, fl, rec, nil, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Dispatch(reminder.Trigger{URL: "https://example.com", SoundPath: "/tmp/gone.wav", Index: 1}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	e := waitEntry(t, rec)
	if e.Outcome != reminder.OutcomeFailed {
		t.Fatalf("Outcome = %q, want failed when the sound step fails", e.Outcome)
	}
	// The browser step still ran.
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if len(fl.opened) != 1 {
		t.Fatalf("opened = %v, want the URL opened before the sound failure", fl.opened)
	}
}

func TestQueueFullRejectsWithoutBlocking(t *testing.T) {
	fl := &fakeLauncher{
		gate:    make(chan struct{}),
		started: make(chan struct{}, 4),
	}
	rec := newFakeRecorder()
	s := New(Config{Workers: 1, QueueSize: 1}, fl, rec, nil, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	// First trigger occupies the worker, second fills the queue.
	if err := s.Dispatch(reminder.Trigger{URL: "https://example.com", Index: 1}); err != nil {
		t.Fatalf("Dispatch #1: %v", err)
	}
	select {
	case <-fl.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first trigger")
	}
	if err := s.Dispatch(reminder.Trigger{URL: "https://example.com", Index: 2}); err != nil {
		t.Fatalf("Dispatch #2: %v", err)
	}

	err := s.Dispatch(reminder.Trigger{URL: "https://example.com", Index: 3})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Dispatch #3 = %v, want ErrQueueFull", err)
	}
	e := waitEntry(t, rec)
	if e.Index != 3 || e.Outcome != reminder.OutcomeFailed {
		t.Fatalf("dropped entry = %+v, want #3 recorded as failed", e)
	}

	// Unblock the worker; the two queued triggers finish normally.
	close(fl.gate)
	for i := 0; i < 2; i++ {
		if e := waitEntry(t, rec); e.Outcome != reminder.OutcomeSuccess {
			t.Fatalf("queued trigger outcome = %q, want success", e.Outcome)
		}
	}
}

func TestDispatchBeforeStartReturnsErrStopped(t *testing.T) {
	rec := newFakeRecorder()
	s := New(Config{}, &fakeLauncher{}, rec, nil, logx.Nop())

	err := s.Dispatch(reminder.Trigger{URL: "https://example.com", Index: 1})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("Dispatch before Start = %v, want ErrStopped", err)
	}
	if e := waitEntry(t, rec); e.Outcome != reminder.OutcomeFailed {
		t.Fatalf("entry = %+v, want recorded as failed", e)
	}
}

func TestStopThenDispatchRejected(t *testing.T) {
	rec := newFakeRecorder()
	s := New(Config{Workers: 1}, &fakeLauncher{}, rec, nil, logx.Nop())
	s.Start(context.Background())
	s.Stop(context.Background())
	// Stop is idempotent.
	s.Stop(context.Background())

	if err := s.Dispatch(reminder.Trigger{URL: "https://example.com", Index: 1}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Dispatch after Stop = %v, want ErrStopped", err)
	}
}

func TestApplySwapsRateLimit(t *testing.T) {
	s := New(Config{LaunchesPerMinute: 30}, &fakeLauncher{}, nil, nil, logx.Nop())
	old := s.limiter
	s.Apply(Config{LaunchesPerMinute: 60})
	if s.limiter == old {
		t.Fatal("Apply with a new rate kept the old limiter")
	}
	cur := s.limiter
	s.Apply(Config{LaunchesPerMinute: 60})
	if s.limiter != cur {
		t.Fatal("Apply with an unchanged rate replaced the limiter")
	}
}
