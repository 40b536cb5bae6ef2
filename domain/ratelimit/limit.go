package ratelimit

import (
	"encoding/json"
	"strconv"
	"time"
)

// Limit is either Unbounded or Bounded(n). The zero value is Bounded(0).
type Limit struct {
	max       int64
	unbounded bool
}

// Bounded returns a limit of n requests per window.
func Bounded(n int64) Limit { return Limit{max: n} }

// Unbounded returns a limit that never denies.
func Unbounded() Limit { return Limit{unbounded: true} }

// IsUnbounded reports whether the limit never denies.
func (l Limit) IsUnbounded() bool { return l.unbounded }

// Max returns the request ceiling. ok is false for unbounded limits.
func (l Limit) Max() (n int64, ok bool) {
	if l.unbounded {
		return 0, false
	}
	return l.max, true
}

// Allows reports whether a post-increment count is within the limit.
func (l Limit) Allows(count int64) bool {
	return l.unbounded || count <= l.max
}

// String returns the limit as a number or "unlimited".
func (l Limit) String() string {
	if l.unbounded {
		return "unlimited"
	}
	return strconv.FormatInt(l.max, 10)
}

// MarshalJSON encodes bounded limits as numbers and unbounded as "unlimited".
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unbounded {
		return json.Marshal("unlimited")
	}
	return json.Marshal(l.max)
}

// Reasons for denial
const (
	ReasonLimitExceeded = "rate_limit_exceeded"
)

// Decision is the outcome of admitting one request (value type).
type Decision struct {
	Allowed bool
	Count   int64 // post-increment counter value
	Limit   Limit
	ResetAt time.Time // end of the current window
	Reason  string    // If not allowed, why

	// Degraded is set when the counter could not be read and the request
	// was admitted under a fail-open policy.
	Degraded bool
}

// Decide evaluates a post-increment count against a limit.
// The increment that produced count has already happened, so denied
// attempts still consume the window.
// This is a PURE function.
func Decide(count int64, limit Limit, w Window, now time.Time) Decision {
	d := Decision{
		Allowed: limit.Allows(count),
		Count:   count,
		Limit:   limit,
		ResetAt: w.End(now),
	}
	if !d.Allowed {
		d.Reason = ReasonLimitExceeded
	}
	return d
}

// Remaining returns the requests left in the window, or -1 if unbounded.
func (d Decision) Remaining() int64 {
	n, ok := d.Limit.Max()
	if !ok {
		return -1
	}
	if d.Count >= n {
		return 0
	}
	return n - d.Count
}

// CalculateDelay returns how long to wait before retrying.
// This is a PURE function.
func CalculateDelay(d Decision, now time.Time) time.Duration {
	if d.Allowed {
		return 0
	}
	delay := d.ResetAt.Sub(now)
	if delay < 0 {
		return 0
	}
	return delay
}
