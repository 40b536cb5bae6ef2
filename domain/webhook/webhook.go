// Package webhook provides value types and pure functions for webhook
// registration bookkeeping. Delivery is handled outside this system.
package webhook

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// EventType represents a type of event a registration subscribes to.
type EventType string

// Supported event types
const (
	EventToolCreated          EventType = "tool.created"
	EventToolUpdated          EventType = "tool.updated"
	EventReviewPublished      EventType = "review.published"
	EventCertificationChanged EventType = "certification.changed"
)

// AllEventTypes returns all supported event types.
func AllEventTypes() []EventType {
	return []EventType{
		EventToolCreated,
		EventToolUpdated,
		EventReviewPublished,
		EventCertificationChanged,
	}
}

// Registration is a webhook target owned by one tenant (value type).
type Registration struct {
	ID        string      `json:"id"`
	Owner     string      `json:"-"`
	URL       string      `json:"url"`
	Events    []EventType `json:"events"`
	Secret    string      `json:"secret,omitempty"` // HMAC signing secret, shown once at creation
	CreatedAt time.Time   `json:"createdAt"`
}

// CreateParams contains the caller-supplied fields of a registration.
type CreateParams struct {
	URL    string      `json:"url"`
	Events []EventType `json:"events"`
}

// MaxURLLength bounds registered target URLs.
const MaxURLLength = 2048

// SecretPrefix marks webhook signing secrets.
const SecretPrefix = "whsec_"

// SecretBytes is the entropy of a signing secret.
const SecretBytes = 32

// New validates params and builds a registration carrying secret.
// Events are de-duplicated and sorted so equal sets compare equal.
// This is a PURE function.
func New(id, owner string, p CreateParams, secret string, now time.Time) (Registration, error) {
	if owner == "" {
		return Registration{}, fmt.Errorf("owner is required")
	}
	if err := ValidateURL(p.URL); err != nil {
		return Registration{}, err
	}
	events, err := ValidateEvents(p.Events)
	if err != nil {
		return Registration{}, err
	}
	if !strings.HasPrefix(secret, SecretPrefix) || len(secret) == len(SecretPrefix) {
		return Registration{}, fmt.Errorf("signing secret is malformed")
	}
	return Registration{
		ID:        id,
		Owner:     owner,
		URL:       strings.TrimSpace(p.URL),
		Events:    events,
		Secret:    secret,
		CreatedAt: now.UTC(),
	}, nil
}

// OwnedBy reports whether owner may read or delete the registration.
func (r Registration) OwnedBy(owner string) bool {
	return owner != "" && r.Owner == owner
}

// Redacted returns a copy without the signing secret, for listings.
func (r Registration) Redacted() Registration {
	r.Secret = ""
	return r
}

// ValidateURL validates a webhook target URL.
// This is a PURE function.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	if len(raw) > MaxURLLength {
		return fmt.Errorf("url is too long")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("url is not valid")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("url must start with https:// or http://")
	}
	if u.Host == "" {
		return fmt.Errorf("url must include a host")
	}
	return nil
}

// ValidateEvents validates a list of event types and returns the
// de-duplicated, sorted set.
// This is a PURE function.
func ValidateEvents(events []EventType) ([]EventType, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("at least one event type is required")
	}
	valid := make(map[EventType]bool)
	for _, t := range AllEventTypes() {
		valid[t] = true
	}
	seen := make(map[EventType]bool, len(events))
	out := make([]EventType, 0, len(events))
	for _, e := range events {
		if !valid[e] {
			return nil, fmt.Errorf("invalid event type: %s", e)
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
