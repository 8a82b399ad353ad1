package reminder

import (
	"testing"
	"time"
)

func TestHeatmapBucketsSameDayByHour(t *testing.T) {
	day := func(hour, min int) time.Time {
		return time.Date(2025, 6, 2, hour, min, 0, 0, time.UTC)
	}
	entries := []Entry{
		{At: day(9, 5), Index: 1, Outcome: OutcomeSuccess},
		{At: day(9, 30), Index: 2, Outcome: OutcomeSuccess},
		{At: day(14, 10), Index: 3, Outcome: OutcomeFailed},
		{At: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), Index: 4, Outcome: OutcomeSuccess}, // previous day
	}
	now := day(16, 0)

	hm := Heatmap(entries, now)
	if hm[9] != 2 || hm[14] != 1 {
		t.Fatalf("heatmap = %v", hm)
	}
	sum := 0
	for _, n := range hm {
		sum += n
	}
	if sum != 3 {
		t.Fatalf("sum = %d, want 3 (same-day entries)", sum)
	}
}

func TestHeatmapEmptyHistory(t *testing.T) {
	hm := Heatmap(nil, time.Now())
	for h, n := range hm {
		if n != 0 {
			t.Fatalf("bucket %d = %d, want 0", h, n)
		}
	}
}

func TestHeatmapUsesLocalDay(t *testing.T) {
	// 23:30 UTC on June 1st is 01:30 on June 2nd in UTC+2; it must count
	// toward June 2nd when "today" is evaluated in that zone.
	loc := time.FixedZone("UTC+2", 2*3600)
	entries := []Entry{
		{At: time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC), Index: 1, Outcome: OutcomeSuccess},
	}
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, loc)

	hm := Heatmap(entries, now)
	if hm[1] != 1 {
		t.Fatalf("heatmap = %v, want entry in bucket 1", hm)
	}
}
