package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

const (
	settingsFile = "settings.json"
	historyFile  = "history.json"
)

// fileStore keeps settings and history in two JSON files under a single
// directory. Both are loaded once at open time and the in-memory copy is
// authoritative afterwards: reads never touch the disk again, and a write
// that keeps failing degrades to a warning instead of an error so a broken
// disk cannot take the reminder schedule down with it.
type fileStore struct {
	log logx.Logger
	dir string

	mu       sync.Mutex
	settings *reminder.Settings
	entries  []reminder.Entry // oldest first
}

func openFile(cfg Config, log logx.Logger) (reminder.Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("history.path is required for the file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &fileStore{log: log, dir: dir}
	s.loadSettings()
	s.loadHistory()
	return s, nil
}

// loadSettings reads settings.json. A missing file means no settings were
// ever saved; unreadable or corrupt content degrades to the same state with
// a warning rather than failing the open.
func (s *fileStore) loadSettings() {
	path := filepath.Join(s.dir, settingsFile)
	b, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("settings file unreadable; starting empty", logx.String("path", path), logx.Err(err))
		}
		return
	}
	var set reminder.Settings
	if err := json.Unmarshal(b, &set); err != nil {
		s.log.Warn("settings file corrupt; starting empty", logx.String("path", path), logx.Err(err))
		return
	}
	s.settings = &set
}

func (s *fileStore) loadHistory() {
	path := filepath.Join(s.dir, historyFile)
	b, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("history file unreadable; starting empty", logx.String("path", path), logx.Err(err))
		}
		return
	}
	var entries []reminder.Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		s.log.Warn("history file corrupt; starting empty", logx.String("path", path), logx.Err(err))
		return
	}
	if len(entries) > reminder.MaxHistoryEntries {
		entries = entries[len(entries)-reminder.MaxHistoryEntries:]
	}
	s.entries = entries
}

func (s *fileStore) SaveSettings(ctx context.Context, set reminder.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := set
	s.settings = &cp
	s.writeJSON(settingsFile, cp)
	return nil
}

func (s *fileStore) LoadSettings(ctx context.Context) (reminder.Settings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return reminder.Settings{}, false, nil
	}
	return *s.settings, true, nil
}

func (s *fileStore) Append(ctx context.Context, e reminder.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if len(s.entries) > reminder.MaxHistoryEntries {
		s.entries = s.entries[len(s.entries)-reminder.MaxHistoryEntries:]
	}
	s.writeJSON(historyFile, s.entries)
	return nil
}

// History returns entries newest first. limit <= 0 returns everything.
func (s *fileStore) History(ctx context.Context, limit int) ([]reminder.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]reminder.Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *fileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.writeJSON(historyFile, []reminder.Entry{})
	return nil
}

// Annotate attaches a note to the entry recorded at the given time, or to
// the newest entry when at is zero.
func (s *fileStore) Annotate(ctx context.Context, at time.Time, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return reminder.ErrNoEntry
	}
	idx := -1
	if at.IsZero() {
		idx = len(s.entries) - 1
	} else {
		for i := len(s.entries) - 1; i >= 0; i-- {
			if s.entries[i].At.Equal(at) {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return reminder.ErrNoEntry
	}
	s.entries[idx].Note = note
	s.writeJSON(historyFile, s.entries)
	return nil
}

func (s *fileStore) Compact(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]reminder.Entry, 0, len(s.entries))
	removed := 0
	for _, e := range s.entries {
		if e.At.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0, nil
	}
	s.entries = kept
	s.writeJSON(historyFile, s.entries)
	return removed, nil
}

func (s *fileStore) Close() error { return nil }

// writeJSON marshals v and replaces <dir>/<name> atomically: the bytes go
// to a temp file in the same directory first, then rename over the target.
// A failed write is retried once; after that only a warning is logged and
// the in-memory state remains authoritative.
func (s *fileStore) writeJSON(name string, v any) {
	path := filepath.Join(s.dir, name)
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		s.log.Warn("encode failed; keeping in-memory state", logx.String("file", name), logx.Err(err))
		return
	}
	if err := atomicWrite(path, b); err != nil {
		if err = atomicWrite(path, b); err != nil {
			s.log.Warn("write failed after retry; keeping in-memory state", logx.String("path", path), logx.Err(err))
		}
	}
}

func atomicWrite(path string, b []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
