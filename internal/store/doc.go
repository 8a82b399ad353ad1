// Package store persists reminder settings and trigger history.
//
// Two drivers share the reminder.Store contract: a file driver that keeps
// settings.json and history.json in a directory and rewrites them atomically,
// and a sqlite driver backed by modernc.org/sqlite. Both enforce the history
// cap so the record stays bounded no matter how long the daemon runs.
package store
