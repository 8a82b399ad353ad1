package reminder

import "time"

// Heatmap buckets entries into 24 hourly counts for the calendar day of now,
// evaluated in now's location. Entries from other days are ignored, so the
// bucket sum always equals the number of same-day entries.
func Heatmap(entries []Entry, now time.Time) [24]int {
	var hours [24]int
	loc := now.Location()
	y, m, d := now.Date()
	for _, e := range entries {
		t := e.At.In(loc)
		ey, em, ed := t.Date()
		if ey == y && em == m && ed == d {
			hours[t.Hour()]++
		}
	}
	return hours
}
