package store

import "time"

// Config configures persistence.
//
// Driver values:
//   - "file": atomic-JSON file backend (default when empty)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
