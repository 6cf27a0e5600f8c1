package chat

import "time"

// logThrottle lets one log line through per interval and counts the ones it
// held back.
type logThrottle struct {
	interval   time.Duration
	last       time.Time
	suppressed int
}

// allow reports whether a line may be logged at now, and how many lines were
// suppressed since the last one that was.
func (t *logThrottle) allow(now time.Time) (bool, int) {
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		t.suppressed++
		return false, 0
	}
	n := t.suppressed
	t.last = now
	t.suppressed = 0
	return true, n
}
