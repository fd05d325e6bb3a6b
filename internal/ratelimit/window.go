package ratelimit

import (
	"fmt"
	"time"
)

// Window is a fixed-length accounting bucket for rate-limit counters.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Windows lists all windows in evaluation order, most granular first.
var Windows = []Window{WindowMinute, WindowHour, WindowDay}

// Length returns the duration covered by one bucket of this window.
func (w Window) Length() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// TTL is the expiry applied to a counter on increment. Counters carry the
// bucket stamp in their key, so the TTL only bounds how long a dead bucket
// lingers in the store.
func (w Window) TTL() time.Duration {
	return w.Length()
}

// bucketStamp returns the formatted timestamp identifying the bucket that
// contains now.
func (w Window) bucketStamp(now time.Time) string {
	switch w {
	case WindowMinute:
		return now.Format("200601021504")
	case WindowHour:
		return now.Format("2006010215")
	case WindowDay:
		return now.Format("20060102")
	default:
		return now.Format("200601021504")
	}
}

// CounterKey builds the counter-store key for (tenant, messageType, window)
// at the given time. Keys are tenant-scoped so tenants can never interfere
// with each other's counters.
func (w Window) CounterKey(tenantID, messageType string, now time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s:%s", tenantID, messageType, w, w.bucketStamp(now))
}

// NextReset returns the next aligned boundary of the window: the next minute
// at :00, the next hour at :00:00, or the next midnight in loc for the day
// window. This is an aligned boundary, not a rolling now+window.
func (w Window) NextReset(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	switch w {
	case WindowMinute:
		return now.Truncate(time.Minute).Add(time.Minute)
	case WindowHour:
		return now.Truncate(time.Hour).Add(time.Hour)
	case WindowDay:
		local := now.In(loc)
		midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		return midnight.AddDate(0, 0, 1)
	default:
		return now.Truncate(time.Minute).Add(time.Minute)
	}
}
