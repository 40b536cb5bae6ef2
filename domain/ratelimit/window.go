// Package ratelimit provides pure fixed-window rate limiting functions.
// All functions are deterministic - same input always produces same output.
package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit identifies how a window is aligned to the wall clock.
type Unit int

const (
	UnitDay   Unit = iota // UTC calendar day
	UnitMonth             // UTC calendar month (billing period)
	UnitFixed             // floor(now / Length)
)

// Window describes a fixed counting window (value type).
// Window boundaries are derived from wall-clock truncation only, so every
// instance computes the same window id for the same instant.
type Window struct {
	Unit   Unit
	Length time.Duration // only used by UnitFixed
}

// Day returns a window aligned to UTC calendar days.
func Day() Window { return Window{Unit: UnitDay} }

// Month returns a window aligned to UTC calendar months.
func Month() Window { return Window{Unit: UnitMonth} }

// Fixed returns a window of the given length aligned to the Unix epoch.
func Fixed(d time.Duration) Window { return Window{Unit: UnitFixed, Length: d} }

// ParseWindow parses "day", "month" or a Go duration such as "1h".
func ParseWindow(s string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "day", "daily":
		return Day(), nil
	case "month", "monthly":
		return Month(), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return Window{}, fmt.Errorf("invalid window %q: %w", s, err)
	}
	if d < time.Second {
		return Window{}, fmt.Errorf("invalid window %q: must be at least 1s", s)
	}
	return Fixed(d), nil
}

// String returns the configuration name of the window.
func (w Window) String() string {
	switch w.Unit {
	case UnitDay:
		return "day"
	case UnitMonth:
		return "month"
	default:
		return w.Length.String()
	}
}

// ID returns the identifier of the window containing now.
// This is a PURE function.
func (w Window) ID(now time.Time) string {
	now = now.UTC()
	switch w.Unit {
	case UnitDay:
		return now.Format("2006-01-02")
	case UnitMonth:
		return now.Format("2006-01")
	default:
		return strconv.FormatInt(now.UnixNano()/int64(w.Length), 10)
	}
}

// Start returns the first instant of the window containing now.
func (w Window) Start(now time.Time) time.Time {
	now = now.UTC()
	switch w.Unit {
	case UnitDay:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case UnitMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		n := now.UnixNano() / int64(w.Length)
		return time.Unix(0, n*int64(w.Length)).UTC()
	}
}

// End returns the first instant after the window containing now.
func (w Window) End(now time.Time) time.Time {
	start := w.Start(now)
	switch w.Unit {
	case UnitDay:
		return start.AddDate(0, 0, 1)
	case UnitMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start.Add(w.Length)
	}
}

// CounterKey builds the quota store key for an identity in the window
// containing now. Old windows become unreachable once time advances.
func CounterKey(scope, identity string, w Window, now time.Time) string {
	return scope + ":" + identity + ":" + w.ID(now)
}
