package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

func openFileStore(t *testing.T, dir string) reminder.Store {
	t.Helper()
	st, err := Open(context.Background(), Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestFileSettingsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	st := openFileStore(t, dir)
	if _, ok, err := st.LoadSettings(ctx); err != nil || ok {
		t.Fatalf("LoadSettings on fresh dir = ok=%v err=%v, want none", ok, err)
	}

	want := reminder.Settings{
		URL:               "https://example.com/board",
		TotalMinutes:      90,
		FirstMinutes:      3,
		SecondMinutes:     7,
		SubsequentMinutes: 11,
		BrowserPath:       "/usr/bin/firefox",
	}
	if err := st.SaveSettings(ctx, want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	st2 := openFileStore(t, dir)
	got, ok, err := st2.LoadSettings(ctx)
	if err != nil || !ok {
		t.Fatalf("LoadSettings after reopen = ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("settings after reopen = %+v, want %+v", got, want)
	}
}

func TestFileHistorySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	st := openFileStore(t, dir)

	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		e := reminder.Entry{
			At:      base.Add(time.Duration(i) * time.Minute),
			Index:   i,
			URL:     "https://example.com/board",
			Outcome: reminder.OutcomeSuccess,
		}
		if err := st.Append(ctx, e); err != nil {
			t.Fatalf("Append #%d: %v", i, err)
		}
	}

	st2 := openFileStore(t, dir)
	got, err := st2.History(ctx, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("History returned %d entries, want 3", len(got))
	}
	if got[0].Index != 3 || got[2].Index != 1 {
		t.Fatalf("History order = [%d %d %d], want newest first", got[0].Index, got[1].Index, got[2].Index)
	}
	if got[0].Outcome != reminder.OutcomeSuccess {
		t.Fatalf("Outcome = %q, want %q", got[0].Outcome, reminder.OutcomeSuccess)
	}

	limited, err := st2.History(ctx, 2)
	if err != nil {
		t.Fatalf("History limit 2: %v", err)
	}
	if len(limited) != 2 || limited[0].Index != 3 {
		t.Fatalf("History(2) = %+v, want two newest", limited)
	}
}

func TestFileAppendEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	st := openFileStore(t, dir)

	for i := 1; i <= reminder.MaxHistoryEntries+1; i++ {
		if err := st.Append(ctx, reminder.Entry{Index: i, Outcome: reminder.OutcomeSuccess}); err != nil {
			t.Fatalf("Append #%d: %v", i, err)
		}
	}

	got, err := st.History(ctx, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != reminder.MaxHistoryEntries {
		t.Fatalf("History holds %d entries, want %d", len(got), reminder.MaxHistoryEntries)
	}
	if got[0].Index != reminder.MaxHistoryEntries+1 {
		t.Fatalf("newest entry = #%d, want #%d", got[0].Index, reminder.MaxHistoryEntries+1)
	}
	if got[len(got)-1].Index != 2 {
		t.Fatalf("oldest entry = #%d, want #2 after eviction", got[len(got)-1].Index)
	}
}

func TestFileCorruptFilesDegradeToEmpty(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	if err := os.WriteFile(filepath.Join(dir, settingsFile), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, historyFile), []byte("]["), 0o600); err != nil {
		t.Fatal(err)
	}

	st := openFileStore(t, dir)
	if _, ok, err := st.LoadSettings(ctx); err != nil || ok {
		t.Fatalf("LoadSettings from corrupt file = ok=%v err=%v, want empty", ok, err)
	}
	got, err := st.History(ctx, 0)
	if err != nil {
		t.Fatalf("History from corrupt file: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("History returned %d entries from corrupt file, want 0", len(got))
	}

	// The store must still accept new writes.
	if err := st.Append(ctx, reminder.Entry{Index: 1, Outcome: reminder.OutcomeSuccess}); err != nil {
		t.Fatalf("Append after corrupt load: %v", err)
	}
	got, _ = st.History(ctx, 0)
	if len(got) != 1 {
		t.Fatalf("History after recovery = %d entries, want 1", len(got))
	}
}

func TestFileAnnotate(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	st := openFileStore(t, dir)

	if err := st.Annotate(ctx, time.Time{}, "x"); !errors.Is(err, reminder.ErrNoEntry) {
		t.Fatalf("Annotate on empty history = %v, want ErrNoEntry", err)
	}

	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 2; i++ {
		_ = st.Append(ctx, reminder.Entry{At: base.Add(time.Duration(i) * time.Minute), Index: i, Outcome: reminder.OutcomeSuccess})
	}

	if err := st.Annotate(ctx, time.Time{}, "latest"); err != nil {
		t.Fatalf("Annotate newest: %v", err)
	}
	if err := st.Annotate(ctx, base.Add(time.Minute), "first"); err != nil {
		t.Fatalf("Annotate by timestamp: %v", err)
	}
	if err := st.Annotate(ctx, base.Add(time.Hour), "nope"); !errors.Is(err, reminder.ErrNoEntry) {
		t.Fatalf("Annotate unknown timestamp = %v, want ErrNoEntry", err)
	}

	got, _ := st.History(ctx, 0)
	if got[0].Note != "latest" || got[1].Note != "first" {
		t.Fatalf("notes = [%q %q], want [latest first]", got[0].Note, got[1].Note)
	}
}

func TestFileClearHistory(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	st := openFileStore(t, dir)

	_ = st.Append(ctx, reminder.Entry{Index: 1, Outcome: reminder.OutcomeSuccess})
	if err := st.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, _ := st.History(ctx, 0)
	if len(got) != 0 {
		t.Fatalf("History after Clear = %d entries, want 0", len(got))
	}

	// Clearing persists: a reopened store sees no entries either.
	st2 := openFileStore(t, dir)
	got, _ = st2.History(ctx, 0)
	if len(got) != 0 {
		t.Fatalf("History after reopen = %d entries, want 0", len(got))
	}
}

func TestFileCompactRemovesOldEntries(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	st := openFileStore(t, dir)

	now := time.Now()
	_ = st.Append(ctx, reminder.Entry{At: now.Add(-48 * time.Hour), Index: 1, Outcome: reminder.OutcomeSuccess})
	_ = st.Append(ctx, reminder.Entry{At: now.Add(-36 * time.Hour), Index: 2, Outcome: reminder.OutcomeSuccess})
	_ = st.Append(ctx, reminder.Entry{At: now.Add(-time.Hour), Index: 3, Outcome: reminder.OutcomeSuccess})

	removed, err := st.Compact(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if removed != 2 {
		t.Fatalf("Compact removed %d, want 2", removed)
	}
	got, _ := st.History(ctx, 0)
	if len(got) != 1 || got[0].Index != 3 {
		t.Fatalf("History after Compact = %+v, want only #3", got)
	}

	if removed, _ := st.Compact(ctx, 24*time.Hour); removed != 0 {
		t.Fatalf("second Compact removed %d, want 0", removed)
	}
}

func TestFileWritesLeaveNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	st := openFileStore(t, dir)

	_ = st.SaveSettings(ctx, reminder.DefaultSettings())
	_ = st.Append(ctx, reminder.Entry{Index: 1, Outcome: reminder.OutcomeSuccess})

	for _, name := range []string{settingsFile + ".tmp", historyFile + ".tmp"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Fatalf("temp file %s left behind (err=%v)", name, err)
		}
	}
}
