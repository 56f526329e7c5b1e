// Package biztime provides utilities for business timezone calculations.
// Storage and transport use UTC. The business timezone only decides where a
// calendar day starts, which matters for date-scoped access checks.
package biztime

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTimezone is the business timezone used when none is configured.
const DefaultTimezone = "UTC"

var (
	bizLocation *time.Location
	locMu       sync.RWMutex
)

// Init sets the business timezone. An empty tz selects DefaultTimezone.
func Init(tz string) error {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("failed to load business timezone %q: %w", tz, err)
	}
	locMu.Lock()
	bizLocation = loc
	locMu.Unlock()
	return nil
}

// Location returns the business timezone, UTC when Init was never called.
func Location() *time.Location {
	locMu.RLock()
	defer locMu.RUnlock()
	if bizLocation == nil {
		return time.UTC
	}
	return bizLocation
}

// NowUTC returns current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// StartOfDayUTC returns the start of t's business day, converted to UTC.
func StartOfDayUTC(t time.Time) time.Time {
	loc := Location()
	b := t.In(loc)
	return time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, loc).UTC()
}

// DaysBetween counts whole business days from a to b (negative when b is earlier).
func DaysBetween(a, b time.Time) int {
	loc := Location()
	da := a.In(loc)
	db := b.In(loc)
	startA := time.Date(da.Year(), da.Month(), da.Day(), 0, 0, 0, 0, time.UTC)
	startB := time.Date(db.Year(), db.Month(), db.Day(), 0, 0, 0, 0, time.UTC)
	return int(startB.Sub(startA).Hours() / 24)
}

// AddMonthsUTC adds n calendar months to t, clamping the day to the target
// month's length so Jan 31 + 1 month is Feb 28/29 rather than Mar 3.
func AddMonthsUTC(t time.Time, n int) time.Time {
	t = t.UTC()
	firstOfTarget := time.Date(t.Year(), t.Month()+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// FromUnix converts a provider epoch-seconds value to UTC, nil for zero.
func FromUnix(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
