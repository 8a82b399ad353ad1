package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindd/internal/eventbus"
	"remindd/internal/reminder"
	logx "remindd/pkg/logx"

	rtsup "remindd/internal/runtime/supervisor"
)

// Recorder persists the outcome of each dispatched trigger.
type Recorder interface {
	Append(ctx context.Context, e reminder.Entry) error
}

// Service executes triggers on a small worker pool. Dispatch never blocks:
// the queue either takes the trigger or it is recorded as failed on the spot.
type Service struct {
	log      logx.Logger
	bus      eventbus.Bus
	launcher Launcher
	rec      Recorder

	mu       sync.Mutex
	cfg      Config
	limiter  *rate.Limiter
	queue    chan reminder.Trigger
	sup      *rtsup.Supervisor
	stopCh   chan struct{}
	stopDone chan struct{}
}

func New(cfg Config, l Launcher, rec Recorder, bus eventbus.Bus, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	if l == nil {
		l = NewExecLauncher()
	}
	return &Service{
		log:      log,
		bus:      bus,
		launcher: l,
		rec:      rec,
		cfg:      cfg,
		limiter:  newLimiter(cfg.LaunchesPerMinute),
	}
}

// newLimiter caps sustained launches at perMin per minute. The small burst
// lets a stop/start cycle fire its first trigger without waiting.
func newLimiter(perMin int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), 3)
}

// Apply updates the rate limit and sound timeout immediately. Worker and
// queue sizes take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.LaunchesPerMinute != s.cfg.LaunchesPerMinute {
		s.limiter = newLimiter(cfg.LaunchesPerMinute)
	}
	s.cfg = cfg
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	// Start is idempotent; if a Stop is in progress, wait for it first.
	if s.stopCh != nil {
		done := s.stopDone
		s.mu.Unlock()
		if done == nil {
			return
		}
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
		if s.stopCh != nil {
			s.mu.Unlock()
			return
		}
	}

	cfg := s.cfg
	s.queue = make(chan reminder.Trigger, cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.stopDone = nil
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "dispatch"))),
		rtsup.WithCancelOnError(false),
	)
	queue := s.queue
	stopCh := s.stopCh
	sup := s.sup
	s.mu.Unlock()

	for i := 0; i < cfg.Workers; i++ {
		idx := i
		// Auto-restart workers if they panic or exit unexpectedly.
		sup.GoRestart(fmt.Sprintf("worker.%d", idx), func(c context.Context) error {
			s.worker(c, stopCh, queue)
			select {
			case <-stopCh:
				return context.Canceled
			default:
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("worker exited unexpectedly")
		})
	}

	s.log.Info("dispatch started", logx.Int("workers", cfg.Workers), logx.Int("queue", cap(queue)))
}

func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	close(s.stopCh)
	sup := s.sup
	s.mu.Unlock()

	sup.Cancel()
	go func() {
		// Wait unbounded in background; the caller can still time out.
		_ = sup.Wait(context.Background())
		s.mu.Lock()
		s.queue = nil
		s.stopCh = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("dispatch stopped")
	case <-ctx.Done():
		s.log.Warn("dispatch stop timed out", logx.Any("err", ctx.Err()))
	}
}

// Dispatch enqueues a trigger without blocking. A full or stopped queue
// records the trigger as failed and returns the reason; the caller's
// schedule is never delayed.
func (s *Service) Dispatch(t reminder.Trigger) error {
	s.mu.Lock()
	queue := s.queue
	stopping := s.stopDone != nil
	s.mu.Unlock()

	if queue == nil || stopping {
		s.dropFailed(t, "dispatcher stopped")
		return ErrStopped
	}
	select {
	case queue <- t:
		return nil
	default:
		s.dropFailed(t, "queue full")
		return ErrQueueFull
	}
}

// dropFailed records a trigger that never reached a worker. The write runs
// on its own goroutine so a slow store cannot hold up the engine tick.
func (s *Service) dropFailed(t reminder.Trigger, reason string) {
	s.log.Warn("trigger dropped", logx.Int("index", t.Index), logx.String("reason", reason))
	go s.record(t, reminder.OutcomeFailed, reason, 0)
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan reminder.Trigger) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t, ok := <-queue:
			if !ok {
				return
			}
			s.execOne(ctx, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, t reminder.Trigger) {
	start := time.Now()

	var err error
	// Guard against launcher panics: convert to a failed entry so one bad
	// trigger can't kill a worker.
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("dispatch panic", logx.Int("index", t.Index), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		err = s.launch(ctx, t)
	}()

	dur := time.Since(start)
	if err != nil {
		s.log.Warn("trigger dispatch failed", logx.Int("index", t.Index), logx.Any("err", err), logx.Duration("dur", dur))
		s.record(t, reminder.OutcomeFailed, err.Error(), dur)
		return
	}
	s.log.Debug("trigger dispatched", logx.Int("index", t.Index), logx.String("url", t.URL), logx.Duration("dur", dur))
	s.record(t, reminder.OutcomeSuccess, "", dur)
}

func (s *Service) launch(ctx context.Context, t reminder.Trigger) error {
	s.mu.Lock()
	lim := s.limiter
	timeout := s.cfg.SoundTimeout
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return err
	}
	if err := s.launcher.OpenURL(ctx, t.URL, t.BrowserPath); err != nil {
		return fmt.Errorf("open url: %w", err)
	}
	if t.SoundPath == "" {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.launcher.PlaySound(sctx, t.SoundPath); err != nil {
		return fmt.Errorf("play sound: %w", err)
	}
	return nil
}

// record writes the history entry and publishes the matching bus event. The
// outcome is only known here, after the attempt, so the entry is written by
// the dispatch side rather than the engine.
func (s *Service) record(t reminder.Trigger, outcome reminder.Outcome, errStr string, dur time.Duration) {
	e := reminder.Entry{
		At:          t.At,
		Index:       t.Index,
		URL:         t.URL,
		Outcome:     outcome,
		ExpectedSec: t.ExpectedSec,
		ActualSec:   t.ActualSec,
	}
	if s.rec != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.rec.Append(ctx, e); err != nil {
			s.log.Warn("history append failed", logx.Int("index", t.Index), logx.Any("err", err))
		}
	}
	if s.bus == nil {
		return
	}
	typ := EventCompleted
	if outcome == reminder.OutcomeFailed {
		typ = EventFailed
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: Result{
		Index:    t.Index,
		URL:      t.URL,
		Outcome:  outcome,
		Error:    errStr,
		Duration: dur,
	}})
}
