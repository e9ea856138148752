package scheduler

import "time"

// IsDue reports whether a search that last ran at lastRunAt should run again
// at now. A search that never ran is always due.
func IsDue(lastRunAt *time.Time, interval time.Duration, now time.Time) bool {
	if lastRunAt == nil {
		return true
	}
	return !lastRunAt.Add(interval).After(now)
}
