// Package usage provides usage record types and aggregation functions.
// All functions are pure - no side effects.
package usage

import (
	"time"

	"github.com/artpar/toolgate/domain/identity"
	"github.com/artpar/toolgate/domain/tier"
)

// Record is the audit entry of one admitted request (immutable value type).
// Records are append-only and are not the quota enforcement mechanism.
type Record struct {
	ID          string
	IdentityKey string
	Kind        identity.Kind
	Tier        tier.Tier
	Owner       string
	Method      string
	Path        string
	RemoteIP    string
	Timestamp   time.Time
}

// NewRecord creates a record for an admitted request.
func NewRecord(id string, who identity.Identity, method, path, remoteIP string, at time.Time) Record {
	return Record{
		ID:          id,
		IdentityKey: who.Key,
		Kind:        who.Kind,
		Tier:        who.Tier,
		Owner:       who.Owner,
		Method:      method,
		Path:        path,
		RemoteIP:    remoteIP,
		Timestamp:   at.UTC(),
	}
}

// Summary aggregates records of one identity over a period (value type).
type Summary struct {
	IdentityKey string           `json:"identity"`
	PeriodStart time.Time        `json:"periodStart"`
	PeriodEnd   time.Time        `json:"periodEnd"`
	Requests    int64            `json:"requests"`
	ByPath      map[string]int64 `json:"byPath"`
	LastSeen    *time.Time       `json:"lastSeen,omitempty"`
}

// Aggregate combines records into a summary. Records outside
// [periodStart, periodEnd) are ignored.
// This is a PURE function.
func Aggregate(identityKey string, records []Record, periodStart, periodEnd time.Time) Summary {
	s := Summary{
		IdentityKey: identityKey,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		ByPath:      make(map[string]int64),
	}

	for _, r := range records {
		if r.Timestamp.Before(periodStart) || !r.Timestamp.Before(periodEnd) {
			continue
		}
		s.Requests++
		s.ByPath[r.Method+" "+r.Path]++
		if s.LastSeen == nil || r.Timestamp.After(*s.LastSeen) {
			ts := r.Timestamp
			s.LastSeen = &ts
		}
	}

	return s
}
