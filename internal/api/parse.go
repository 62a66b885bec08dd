package api

import (
	"strconv"
	"time"
)

// parseTimestamp accepts unix seconds, unix milliseconds, or RFC3339,
// carried over from the teacher's flexible parseTimeParam since gin's
// binding has no equivalent for a field that may arrive in any of these
// shapes.
func parseTimestamp(v string) (*time.Time, bool) {
	if v == "" {
		return nil, true
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		var t time.Time
		if n >= 1_000_000_000_000 {
			t = time.Unix(0, n*int64(time.Millisecond)).UTC()
		} else {
			t = time.Unix(n, 0).UTC()
		}
		return &t, true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t, true
	}
	return nil, false
}
