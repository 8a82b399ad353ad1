package config

type Config struct {
	// Reminder holds the boot defaults for the reminder schedule.
	// Settings saved through the control API take precedence once present.
	Reminder ReminderConfig `json:"reminder"`

	Dispatch DispatchConfig `json:"dispatch"`
	History  HistoryConfig  `json:"history"`
	HTTP     HTTPConfig     `json:"http"`
	Logging  LoggingConfig  `json:"logging"`
}

// ReminderConfig mirrors the schedule settings the engine runs with.
//
// All *_minutes fields are whole minutes and must be > 0 to pass validation.
type ReminderConfig struct {
	URL               string `json:"url"`
	TotalMinutes      int    `json:"total_minutes"`
	FirstMinutes      int    `json:"first_minutes"`
	SecondMinutes     int    `json:"second_minutes"`
	SubsequentMinutes int    `json:"subsequent_minutes"`

	// BrowserPath overrides the platform opener (xdg-open/open/rundll32).
	BrowserPath string `json:"browser_path,omitempty"`
	// SoundPath is an optional audio file played on each trigger.
	SoundPath string `json:"sound_path,omitempty"`

	// Autostart begins a run immediately on process start.
	Autostart bool `json:"autostart,omitempty"`
}

// DispatchConfig controls the trigger execution workers.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 16
//   - launches_per_minute: 30
//   - sound_timeout: "10s"
type DispatchConfig struct {
	Workers           int    `json:"workers,omitempty"`
	QueueSize         int    `json:"queue_size,omitempty"`
	LaunchesPerMinute int    `json:"launches_per_minute,omitempty"`
	SoundTimeout      string `json:"sound_timeout,omitempty"`
}

// HistoryConfig controls the persistence layer.
//
// Example:
//
//	"history": { "driver": "file", "path": "./remindd_data" }
type HistoryConfig struct {
	Driver      string `json:"driver,omitempty"` // "file" (default) or "sqlite"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	// RetentionDays prunes entries older than this many days on the compact
	// schedule. 0 disables age pruning (the record cap still applies).
	RetentionDays   int    `json:"retention_days,omitempty"`
	CompactSchedule string `json:"compact_schedule,omitempty"` // cron spec, default "@daily"
}

// HTTPConfig controls the control API server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8787").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:8787"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
