package dispatch

import (
	"errors"
	"time"

	"remindd/internal/reminder"
)

// Config sizes the dispatch pool.
type Config struct {
	Workers           int
	QueueSize         int
	LaunchesPerMinute int
	SoundTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.LaunchesPerMinute <= 0 {
		c.LaunchesPerMinute = 30
	}
	if c.SoundTimeout <= 0 {
		c.SoundTimeout = 10 * time.Second
	}
	return c
}

// ErrQueueFull is returned by Dispatch when the queue cannot take another
// trigger. The trigger is recorded as failed before returning.
var ErrQueueFull = errors.New("dispatch queue full")

// ErrStopped is returned by Dispatch when the service is not running.
var ErrStopped = errors.New("dispatch service not running")

// Bus event types.
const (
	EventCompleted = "dispatch.completed"
	EventFailed    = "dispatch.failed"
)

// Result is the payload carried by dispatch.* bus events.
type Result struct {
	Index    int
	URL      string
	Outcome  reminder.Outcome
	Error    string
	Duration time.Duration
}
