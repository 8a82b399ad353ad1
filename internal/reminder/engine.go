package reminder

import (
	"context"
	"sync"
	"time"

	"remindd/internal/eventbus"
	logx "remindd/pkg/logx"
)

// Event types published on the bus.
const (
	EventStarted = "reminder.started"
	EventTrigger = "reminder.trigger"
	EventStopped = "reminder.stopped"
)

// SessionEvent is the bus payload for reminder.started / reminder.stopped.
type SessionEvent struct {
	State      State      `json:"state"`
	Reason     StopReason `json:"reason,omitempty"`
	Count      int        `json:"count"`
	ElapsedSec int        `json:"elapsed_sec"`
	TotalSec   int        `json:"total_sec"`
}

// TriggerEvent is the bus payload for reminder.trigger.
type TriggerEvent struct {
	Index int       `json:"index"`
	At    time.Time `json:"at"`
	URL   string    `json:"url"`
}

// Engine owns the session state machine and its heartbeat.
//
// Timing model: the heartbeat counts whole seconds. Interval deadlines are
// countdowns seeded from the nominal wait, so a delayed tick never shifts
// later deadlines. On every tick the total-duration cutoff is checked before
// any due interval; the session never outlives its total and no trigger
// fires at or past the cutoff.
type Engine struct {
	log  logx.Logger
	disp Dispatcher
	bus  eventbus.Bus

	// test seams
	now       func() time.Time
	tickEvery time.Duration

	mu         sync.Mutex
	state      State
	set        Settings
	startedAt  time.Time
	lastFireAt time.Time
	elapsedSec int
	totalSec   int
	count      int
	armed      bool
	nextInSec  int
	pendingSec int

	stopCh   chan struct{}
	stopDone chan struct{}
}

func NewEngine(disp Dispatcher, bus eventbus.Bus, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		log:       log,
		disp:      disp,
		bus:       bus,
		now:       time.Now,
		tickEvery: time.Second,
		state:     StateIdle,
	}
}

// Start begins a session with the given settings. The first trigger fires
// immediately. ctx bounds the session: cancellation halts the heartbeat.
// Returns ErrAlreadyRunning while a session is active, leaving that session
// untouched.
func (e *Engine) Start(ctx context.Context, set Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}

	e.state = StateRunning
	e.set = set
	e.startedAt = e.now()
	e.lastFireAt = time.Time{}
	e.elapsedSec = 0
	e.totalSec = set.TotalMinutes * 60
	e.count = 0
	e.armed = false
	e.nextInSec = 0
	e.pendingSec = 0
	e.stopCh = make(chan struct{})
	e.stopDone = make(chan struct{})
	stopCh, stopDone := e.stopCh, e.stopDone

	e.publish(EventStarted, SessionEvent{State: StateRunning, TotalSec: e.totalSec})
	e.log.Info("session started",
		logx.String("url", set.URL),
		logx.Int("total_min", set.TotalMinutes),
		logx.Int("first_min", set.FirstMinutes),
		logx.Int("second_min", set.SecondMinutes),
		logx.Int("subsequent_min", set.SubsequentMinutes),
	)

	e.fireLocked()
	e.armLocked()
	e.mu.Unlock()

	go e.run(ctx, stopCh, stopDone)
	return nil
}

// Stop ends the session, preserving elapsed time and trigger count for
// inspection. Safe to call in any state, any number of times.
func (e *Engine) Stop(ctx context.Context) {
	e.stop(ctx, StopReasonManual)
}

func (e *Engine) stop(ctx context.Context, reason StopReason) {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	e.finishLocked(reason)
	done := e.stopDone
	e.stopDone = nil
	e.mu.Unlock()

	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Status returns a consistent snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		State:          e.state,
		Running:        e.state == StateRunning,
		StartedAt:      e.startedAt,
		Count:          e.count,
		ElapsedSec:     e.elapsedSec,
		TotalSec:       e.totalSec,
		NextInSec:      e.nextInSec,
		PendingWaitSec: e.pendingSec,
		URL:            e.set.URL,
	}
	if e.totalSec > 0 {
		p := float64(e.elapsedSec) / float64(e.totalSec)
		if p > 1 {
			p = 1
		}
		st.Progress = p
	}
	return st
}

func (e *Engine) run(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(e.tickEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			e.halt(StopReasonShutdown)
			return
		case <-stopCh:
			return
		case <-t.C:
			e.Tick()
		}
	}
}

// halt parks the session as stopped without waiting for the heartbeat loop
// (used on parent context cancellation, where the loop is already exiting).
func (e *Engine) halt(reason StopReason) {
	e.mu.Lock()
	if e.state == StateRunning {
		e.finishLocked(reason)
	}
	e.mu.Unlock()
}

// Tick advances the session clock by one heartbeat. The run loop calls it
// once per second; tests drive it directly.
func (e *Engine) Tick() {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}

	e.elapsedSec++

	// Cutoff first: a due interval on the same tick loses to session end.
	if e.elapsedSec >= e.totalSec {
		e.elapsedSec = e.totalSec
		e.finishLocked(StopReasonCompleted)
		e.mu.Unlock()
		return
	}

	if e.armed {
		e.nextInSec--
		if e.nextInSec <= 0 {
			e.fireLocked()
			e.armLocked()
		}
	}
	e.mu.Unlock()
}

func (e *Engine) fireLocked() {
	now := e.now()
	e.count++

	expected := e.pendingSec
	actual := 0
	if e.count > 1 && !e.lastFireAt.IsZero() {
		actual = int(now.Sub(e.lastFireAt) / time.Second)
	}
	e.lastFireAt = now

	t := Trigger{
		URL:         e.set.URL,
		BrowserPath: e.set.BrowserPath,
		SoundPath:   e.set.SoundPath,
		Index:       e.count,
		At:          now,
		ExpectedSec: expected,
		ActualSec:   actual,
	}

	e.publish(EventTrigger, TriggerEvent{Index: t.Index, At: now, URL: t.URL})
	e.log.Info("trigger fired", logx.Int("index", t.Index), logx.Int("elapsed_sec", e.elapsedSec))

	if e.disp != nil {
		if err := e.disp.Dispatch(t); err != nil {
			// The schedule is unaffected; the dispatcher records the failure.
			e.log.Warn("trigger dispatch rejected", logx.Int("index", t.Index), logx.Err(err))
		}
	}
}

// armLocked schedules the wait that follows the trigger just fired. The next
// deadline is armed only when it lands strictly inside the session; otherwise
// the session coasts to its cutoff.
func (e *Engine) armLocked() {
	w := e.set.waitAfter(e.count)
	if w <= 0 || e.elapsedSec+w >= e.totalSec {
		e.armed = false
		e.nextInSec = 0
		e.pendingSec = 0
		return
	}
	e.armed = true
	e.nextInSec = w
	e.pendingSec = w
}

func (e *Engine) finishLocked(reason StopReason) {
	e.state = StateStopped
	e.armed = false
	e.nextInSec = 0
	e.pendingSec = 0
	if e.stopCh != nil {
		close(e.stopCh)
		e.stopCh = nil
	}
	e.publish(EventStopped, SessionEvent{
		State:      StateStopped,
		Reason:     reason,
		Count:      e.count,
		ElapsedSec: e.elapsedSec,
		TotalSec:   e.totalSec,
	})
	e.log.Info("session stopped",
		logx.String("reason", string(reason)),
		logx.Int("count", e.count),
		logx.Int("elapsed_sec", e.elapsedSec),
	)
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: e.now(), Data: data})
}
