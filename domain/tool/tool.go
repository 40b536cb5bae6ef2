// Package tool provides the tool intelligence record served by the gateway
// and pure helpers for slugs and comparisons.
package tool

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Tool is a tool intelligence record. JSON names are the public wire names.
type Tool struct {
	Slug               string             `json:"slug"`
	Name               string             `json:"name"`
	Category           string             `json:"category"`
	Vendor             string             `json:"vendor,omitempty"`
	OverallScore       float64            `json:"overallScore"`
	ReviewDate         string             `json:"reviewDate,omitempty"`
	MethodologyVersion string             `json:"methodologyVersion,omitempty"`
	Summary            string             `json:"summary,omitempty"`
	Scores             map[string]float64 `json:"scores,omitempty"`
	Pricing            string             `json:"pricing,omitempty"`
	Strengths          []string           `json:"strengths,omitempty"`
	Weaknesses         []string           `json:"weaknesses,omitempty"`
	Certified          bool               `json:"certified"`
	Website            string             `json:"website,omitempty"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// ChangelogEntry is one published revision of a tool review.
type ChangelogEntry struct {
	Slug    string    `json:"slug"`
	Version string    `json:"version"`
	Date    time.Time `json:"date"`
	Summary string    `json:"summary"`
	Changes []string  `json:"changes,omitempty"`
}

// Filter narrows tool listings.
type Filter struct {
	Category string
	Limit    int
	Offset   int
}

// Listing bounds.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Comparison bounds.
const (
	MinCompare = 2
	MaxCompare = 5
)

// DefaultSandboxTools is the built-in sandbox allow-list.
var DefaultSandboxTools = []string{"claude", "chatgpt", "gemini", "copilot", "perplexity"}

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// ValidSlug reports whether s is a well-formed tool slug.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// NormalizeSlug lower-cases and trims a slug.
func NormalizeSlug(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseSlugs parses a comma-separated comparison list. Duplicates are
// removed; the result must hold between MinCompare and MaxCompare slugs.
// This is a PURE function.
func ParseSlugs(raw string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		s := NormalizeSlug(part)
		if s == "" || seen[s] {
			continue
		}
		if !ValidSlug(s) {
			return nil, fmt.Errorf("invalid tool slug %q", s)
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) < MinCompare || len(out) > MaxCompare {
		return nil, fmt.Errorf("tools must list between %d and %d distinct slugs", MinCompare, MaxCompare)
	}
	return out, nil
}

// Validate checks a tool record before it is stored.
func (t Tool) Validate() error {
	if !ValidSlug(t.Slug) {
		return fmt.Errorf("invalid tool slug %q", t.Slug)
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if t.OverallScore < 0 || t.OverallScore > 10 {
		return fmt.Errorf("overallScore must be between 0 and 10")
	}
	return nil
}

// Validate checks a changelog entry before it is stored.
func (e ChangelogEntry) Validate() error {
	if strings.TrimSpace(e.Version) == "" {
		return fmt.Errorf("version is required")
	}
	if strings.TrimSpace(e.Summary) == "" {
		return fmt.Errorf("summary is required")
	}
	return nil
}

// NormalizeFilter applies listing defaults and bounds.
func NormalizeFilter(f Filter) Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Category = strings.TrimSpace(f.Category)
	return f
}

// AllowList is an immutable set of slugs.
type AllowList struct {
	slugs []string
	set   map[string]bool
}

// NewAllowList builds an allow-list, normalizing and de-duplicating slugs.
func NewAllowList(slugs []string) AllowList {
	a := AllowList{set: make(map[string]bool, len(slugs))}
	for _, s := range slugs {
		s = NormalizeSlug(s)
		if s == "" || a.set[s] {
			continue
		}
		a.set[s] = true
		a.slugs = append(a.slugs, s)
	}
	return a
}

// Contains reports whether slug is allowed.
func (a AllowList) Contains(slug string) bool {
	return a.set[NormalizeSlug(slug)]
}

// Slugs returns the allowed slugs in configuration order.
func (a AllowList) Slugs() []string {
	out := make([]string, len(a.slugs))
	copy(out, a.slugs)
	return out
}

// String joins the allow-list for messages.
func (a AllowList) String() string {
	return strings.Join(a.slugs, ", ")
}
