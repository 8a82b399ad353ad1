package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// State describes the engine lifecycle.
//
//	idle    -> never started since process boot
//	running -> a session is active
//	stopped -> last session ended (manually or by reaching its total duration);
//	           counters stay readable until the next start
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// StopReason tags why a session ended.
type StopReason string

const (
	StopReasonManual    StopReason = "manual"
	StopReasonCompleted StopReason = "completed"
	StopReasonShutdown  StopReason = "shutdown"
)

// MaxHistoryEntries caps stored trigger history. Oldest entries are evicted
// first once the cap is reached.
const MaxHistoryEntries = 500

// Settings is the schedule a session runs with.
//
// A session snapshots Settings at start; later Configure calls only change
// the stored defaults for the next session.
type Settings struct {
	URL               string `json:"url"`
	TotalMinutes      int    `json:"total_minutes"`
	FirstMinutes      int    `json:"first_minutes"`
	SecondMinutes     int    `json:"second_minutes"`
	SubsequentMinutes int    `json:"subsequent_minutes"`

	// BrowserPath overrides the platform opener. Empty uses the OS default.
	BrowserPath string `json:"browser_path,omitempty"`
	// SoundPath is an optional audio file played on each trigger.
	SoundPath string `json:"sound_path,omitempty"`
}

// DefaultSettings returns the stock schedule: hourly session, 5/10/15 minute
// progression.
func DefaultSettings() Settings {
	return Settings{
		URL:               "https://www.notion.so",
		TotalMinutes:      60,
		FirstMinutes:      5,
		SecondMinutes:     10,
		SubsequentMinutes: 15,
	}
}

// Validate reports the first invalid field as a *ValidationError, nil when ok.
func (s Settings) Validate() error {
	u := strings.TrimSpace(s.URL)
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return &ValidationError{Field: "url", Reason: "must start with http:// or https://"}
	}
	if s.TotalMinutes <= 0 {
		return &ValidationError{Field: "total_minutes", Reason: "must be a positive integer"}
	}
	if s.FirstMinutes <= 0 {
		return &ValidationError{Field: "first_minutes", Reason: "must be a positive integer"}
	}
	if s.SecondMinutes <= 0 {
		return &ValidationError{Field: "second_minutes", Reason: "must be a positive integer"}
	}
	if s.SubsequentMinutes <= 0 {
		return &ValidationError{Field: "subsequent_minutes", Reason: "must be a positive integer"}
	}
	return nil
}

// waitAfter returns the nominal wait in seconds between trigger number count
// and the next one.
func (s Settings) waitAfter(count int) int {
	switch {
	case count <= 1:
		return s.FirstMinutes * 60
	case count == 2:
		return s.SecondMinutes * 60
	default:
		return s.SubsequentMinutes * 60
	}
}

// Outcome records whether a trigger's side effects succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Entry is one fired trigger in the persisted history.
type Entry struct {
	At      time.Time `json:"at"`
	Index   int       `json:"index"` // 1-based position within its session
	URL     string    `json:"url"`
	Outcome Outcome   `json:"outcome"`
	Note    string    `json:"note,omitempty"`

	// ExpectedSec is the nominal wait that preceded this trigger; ActualSec
	// is the wall-clock wait observed. Both are 0 for the first trigger.
	ExpectedSec int `json:"expected_sec,omitempty"`
	ActualSec   int `json:"actual_sec,omitempty"`
}

// Trigger is a firing handed to the Dispatcher.
type Trigger struct {
	URL         string
	BrowserPath string
	SoundPath   string
	Index       int
	At          time.Time
	ExpectedSec int
	ActualSec   int
}

// Status is a consistent snapshot of the engine.
type Status struct {
	State          State     `json:"status"`
	Running        bool      `json:"running"`
	StartedAt      time.Time `json:"started_at"`
	Count          int       `json:"count"`
	ElapsedSec     int       `json:"elapsed"`
	TotalSec       int       `json:"total"`
	NextInSec      int       `json:"next_in"`      // 0 when no trigger is armed
	PendingWaitSec int       `json:"pending_wait"` // length of the armed interval
	Progress       float64   `json:"progress"`     // elapsed/total in [0,1]
	URL            string    `json:"url,omitempty"`
}

// StatusReport is Status plus the recent history and today's hourly heatmap.
type StatusReport struct {
	Status
	Recent  []Entry `json:"recent"`
	Heatmap [24]int `json:"heatmap"`
}

// ErrAlreadyRunning is returned by Start while a session is active.
// The active session is left untouched.
var ErrAlreadyRunning = errors.New("reminder session already running")

// ErrNoEntry is returned when a history operation targets an entry that
// does not exist.
var ErrNoEntry = errors.New("history entry not found")

// ValidationError names the first Settings field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a settings validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Dispatcher executes fired triggers asynchronously. Implementations must
// not block: enqueue or reject immediately.
type Dispatcher interface {
	Dispatch(t Trigger) error
}

// Store persists settings and trigger history. Implementations serialize
// writes internally.
type Store interface {
	SaveSettings(ctx context.Context, s Settings) error
	LoadSettings(ctx context.Context) (Settings, bool, error)

	// Append stores one entry, evicting the oldest beyond MaxHistoryEntries.
	Append(ctx context.Context, e Entry) error
	// History returns entries newest first; limit <= 0 means all stored.
	History(ctx context.Context, limit int) ([]Entry, error)
	Clear(ctx context.Context) error
	// Annotate attaches a note to the entry at the given time; a zero time
	// targets the most recent entry. Returns ErrNoEntry when absent.
	Annotate(ctx context.Context, at time.Time, note string) error
	// Compact removes entries older than the given age. Zero disables age
	// pruning and only the cap applies.
	Compact(ctx context.Context, olderThan time.Duration) (int, error)

	Close() error
}
