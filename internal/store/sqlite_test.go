package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

func openSQLiteStore(t *testing.T) reminder.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(context.Background(), Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openSQLiteStore(t)

	if _, ok, err := st.LoadSettings(ctx); err != nil || ok {
		t.Fatalf("LoadSettings on fresh db = ok=%v err=%v, want none", ok, err)
	}

	want := reminder.Settings{
		URL:               "https://example.com/board",
		TotalMinutes:      45,
		FirstMinutes:      2,
		SecondMinutes:     4,
		SubsequentMinutes: 8,
		SoundPath:         "/usr/share/sounds/ping.wav",
	}
	if err := st.SaveSettings(ctx, want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	got, ok, err := st.LoadSettings(ctx)
	if err != nil || !ok {
		t.Fatalf("LoadSettings = ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}

	// Saving again overwrites the single row.
	want.TotalMinutes = 120
	if err := st.SaveSettings(ctx, want); err != nil {
		t.Fatalf("SaveSettings overwrite: %v", err)
	}
	got, _, _ = st.LoadSettings(ctx)
	if got.TotalMinutes != 120 {
		t.Fatalf("TotalMinutes after overwrite = %d, want 120", got.TotalMinutes)
	}
}

func TestSQLiteHistoryAppendAndCap(t *testing.T) {
	ctx := context.Background()
	st := openSQLiteStore(t)

	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= reminder.MaxHistoryEntries+5; i++ {
		e := reminder.Entry{
			At:      base.Add(time.Duration(i) * time.Second),
			Index:   i,
			URL:     "https://example.com/board",
			Outcome: reminder.OutcomeSuccess,
		}
		if err := st.Append(ctx, e); err != nil {
			t.Fatalf("Append #%d: %v", i, err)
		}
	}

	got, err := st.History(ctx, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != reminder.MaxHistoryEntries {
		t.Fatalf("History holds %d rows, want %d", len(got), reminder.MaxHistoryEntries)
	}
	if got[0].Index != reminder.MaxHistoryEntries+5 {
		t.Fatalf("newest row = #%d, want #%d", got[0].Index, reminder.MaxHistoryEntries+5)
	}
	if got[len(got)-1].Index != 6 {
		t.Fatalf("oldest row = #%d, want #6 after eviction", got[len(got)-1].Index)
	}
	if !got[0].At.Equal(base.Add(time.Duration(reminder.MaxHistoryEntries+5) * time.Second)) {
		t.Fatalf("newest row At = %v, want round-tripped timestamp", got[0].At)
	}
}

func TestSQLiteAnnotateAndClear(t *testing.T) {
	ctx := context.Background()
	st := openSQLiteStore(t)

	if err := st.Annotate(ctx, time.Time{}, "x"); !errors.Is(err, reminder.ErrNoEntry) {
		t.Fatalf("Annotate on empty history = %v, want ErrNoEntry", err)
	}

	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	_ = st.Append(ctx, reminder.Entry{At: base, Index: 1, Outcome: reminder.OutcomeSuccess})
	_ = st.Append(ctx, reminder.Entry{At: base.Add(time.Minute), Index: 2, Outcome: reminder.OutcomeFailed})

	if err := st.Annotate(ctx, time.Time{}, "newest"); err != nil {
		t.Fatalf("Annotate newest: %v", err)
	}
	if err := st.Annotate(ctx, base, "oldest"); err != nil {
		t.Fatalf("Annotate by timestamp: %v", err)
	}
	got, _ := st.History(ctx, 0)
	if got[0].Note != "newest" || got[1].Note != "oldest" {
		t.Fatalf("notes = [%q %q], want [newest oldest]", got[0].Note, got[1].Note)
	}
	if got[0].Outcome != reminder.OutcomeFailed {
		t.Fatalf("Outcome = %q, want %q", got[0].Outcome, reminder.OutcomeFailed)
	}

	if err := st.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, _ = st.History(ctx, 0)
	if len(got) != 0 {
		t.Fatalf("History after Clear = %d rows, want 0", len(got))
	}
}

func TestSQLiteCompact(t *testing.T) {
	ctx := context.Background()
	st := openSQLiteStore(t)

	now := time.Now()
	_ = st.Append(ctx, reminder.Entry{At: now.Add(-72 * time.Hour), Index: 1, Outcome: reminder.OutcomeSuccess})
	_ = st.Append(ctx, reminder.Entry{At: now.Add(-time.Hour), Index: 2, Outcome: reminder.OutcomeSuccess})

	removed, err := st.Compact(ctx, 48*time.Hour)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Compact removed %d, want 1", removed)
	}
	got, _ := st.History(ctx, 0)
	if len(got) != 1 || got[0].Index != 2 {
		t.Fatalf("History after Compact = %+v, want only #2", got)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "postgres", Path: t.TempDir()}, logx.Nop())
	if err == nil {
		t.Fatal("Open with unknown driver succeeded, want error")
	}
}
