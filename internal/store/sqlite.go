package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

// Timestamps are stored as unix milliseconds so range predicates stay
// integer comparisons.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	url TEXT NOT NULL,
	total_minutes INTEGER NOT NULL,
	first_minutes INTEGER NOT NULL,
	second_minutes INTEGER NOT NULL,
	subsequent_minutes INTEGER NOT NULL,
	browser_path TEXT NOT NULL DEFAULT '',
	sound_path TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at INTEGER NOT NULL,
	idx INTEGER NOT NULL,
	url TEXT NOT NULL,
	outcome TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	expected_sec INTEGER NOT NULL DEFAULT 0,
	actual_sec INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_history_at ON history(at);
`

type sqliteStore struct {
	log logx.Logger
	db  *sql.DB
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (reminder.Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history.path is required for the sqlite driver")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection sidesteps SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &sqliteStore{log: log, db: db}, nil
}

func (s *sqliteStore) SaveSettings(ctx context.Context, set reminder.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, url, total_minutes, first_minutes, second_minutes, subsequent_minutes, browser_path, sound_path, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			total_minutes = excluded.total_minutes,
			first_minutes = excluded.first_minutes,
			second_minutes = excluded.second_minutes,
			subsequent_minutes = excluded.subsequent_minutes,
			browser_path = excluded.browser_path,
			sound_path = excluded.sound_path,
			updated_at = excluded.updated_at`,
		set.URL, set.TotalMinutes, set.FirstMinutes, set.SecondMinutes, set.SubsequentMinutes,
		set.BrowserPath, set.SoundPath, time.Now().UnixMilli(),
	)
	return err
}

func (s *sqliteStore) LoadSettings(ctx context.Context) (reminder.Settings, bool, error) {
	var set reminder.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT url, total_minutes, first_minutes, second_minutes, subsequent_minutes, browser_path, sound_path
		FROM settings WHERE id = 1`).
		Scan(&set.URL, &set.TotalMinutes, &set.FirstMinutes, &set.SecondMinutes, &set.SubsequentMinutes,
			&set.BrowserPath, &set.SoundPath)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.Settings{}, false, nil
	}
	if err != nil {
		return reminder.Settings{}, false, err
	}
	return set, true, nil
}

func (s *sqliteStore) Append(ctx context.Context, e reminder.Entry) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (at, idx, url, outcome, note, expected_sec, actual_sec)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		at.UnixMilli(), e.Index, e.URL, string(e.Outcome), e.Note, e.ExpectedSec, e.ActualSec,
	)
	if err != nil {
		return err
	}
	// Evict the oldest rows beyond the cap.
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM history
		WHERE id NOT IN (SELECT id FROM history ORDER BY id DESC LIMIT ?)`,
		reminder.MaxHistoryEntries,
	)
	return err
}

func (s *sqliteStore) History(ctx context.Context, limit int) ([]reminder.Entry, error) {
	if limit <= 0 {
		limit = reminder.MaxHistoryEntries
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT at, idx, url, outcome, note, expected_sec, actual_sec
		FROM history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]reminder.Entry, 0, limit)
	for rows.Next() {
		var (
			e    reminder.Entry
			atMS int64
			outc string
		)
		if err := rows.Scan(&atMS, &e.Index, &e.URL, &outc, &e.Note, &e.ExpectedSec, &e.ActualSec); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(atMS)
		e.Outcome = reminder.Outcome(outc)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM history`)
	return err
}

func (s *sqliteStore) Annotate(ctx context.Context, at time.Time, note string) error {
	var (
		res sql.Result
		err error
	)
	if at.IsZero() {
		res, err = s.db.ExecContext(ctx, `
			UPDATE history SET note = ?
			WHERE id = (SELECT id FROM history ORDER BY id DESC LIMIT 1)`, note)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE history SET note = ?
			WHERE id = (SELECT id FROM history WHERE at = ? ORDER BY id DESC LIMIT 1)`,
			note, at.UnixMilli())
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return reminder.ErrNoEntry
	}
	return nil
}

func (s *sqliteStore) Compact(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Debug("history compacted", logx.Int64("removed", n))
	}
	return int(n), nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }
