// Package tier provides subscription tier value types and the static policy
// table that maps each tier to its quota and feature set.
package tier

import (
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/toolgate/domain/ratelimit"
)

// Tier is a named subscription level.
type Tier string

const (
	Free         Tier = "free"
	Professional Tier = "professional"
	Enterprise   Tier = "enterprise"

	// Sandbox is the implicit tier of anonymous, IP-scoped traffic.
	// It can never be assigned to an API key.
	Sandbox Tier = "sandbox"
)

// Rank orders tiers by entitlement. Unknown tiers rank below Sandbox.
func (t Tier) Rank() int {
	switch t {
	case Sandbox:
		return 0
	case Free:
		return 1
	case Professional:
		return 2
	case Enterprise:
		return 3
	default:
		return -1
	}
}

// Assignable reports whether an API key may carry this tier.
func (t Tier) Assignable() bool {
	return t == Free || t == Professional || t == Enterprise
}

// Parse parses an assignable tier name.
func Parse(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Assignable() {
		return "", fmt.Errorf("unknown tier %q (want free, professional or enterprise)", s)
	}
	return t, nil
}

// Feature is a tier-gated capability.
type Feature string

const (
	FeatureWebhooks   Feature = "webhooks"
	FeatureChangelog  Feature = "changelog"
	FeatureComparison Feature = "comparison"
)

// AllFeatures returns every gated feature.
func AllFeatures() []Feature {
	return []Feature{FeatureWebhooks, FeatureChangelog, FeatureComparison}
}

// ParseFeature parses a feature name.
func ParseFeature(s string) (Feature, error) {
	f := Feature(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllFeatures() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown feature %q", s)
}

// Policy is the immutable quota and access policy of one tier.
type Policy struct {
	Tier       Tier
	Limit      ratelimit.Limit
	Window     ratelimit.Window
	FullAccess bool // false = responses are projected to the public field set
	Features   []Feature
}

// Allows reports whether the tier includes a feature.
func (p Policy) Allows(f Feature) bool {
	for _, have := range p.Features {
		if have == f {
			return true
		}
	}
	return false
}

// Table is an immutable tier -> policy mapping. Swap whole tables to
// change policy; never mutate one in place.
type Table struct {
	policies map[Tier]Policy
}

// NewTable builds a table. Free, Professional, Enterprise and Sandbox
// must all be present.
func NewTable(policies ...Policy) (*Table, error) {
	t := &Table{policies: make(map[Tier]Policy, len(policies))}
	for _, p := range policies {
		if p.Tier.Rank() < 0 {
			return nil, fmt.Errorf("unknown tier %q", p.Tier)
		}
		if _, dup := t.policies[p.Tier]; dup {
			return nil, fmt.Errorf("duplicate policy for tier %q", p.Tier)
		}
		if n, ok := p.Limit.Max(); ok && n < 0 {
			return nil, fmt.Errorf("tier %q: negative limit", p.Tier)
		}
		features := make([]Feature, len(p.Features))
		copy(features, p.Features)
		p.Features = features
		t.policies[p.Tier] = p
	}
	for _, required := range []Tier{Sandbox, Free, Professional, Enterprise} {
		if _, ok := t.policies[required]; !ok {
			return nil, fmt.Errorf("missing policy for tier %q", required)
		}
	}
	return t, nil
}

// Default returns the built-in policy table.
func Default() *Table {
	t, err := NewTable(DefaultPolicies()...)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultPolicies returns the built-in policies.
func DefaultPolicies() []Policy {
	return []Policy{
		{Tier: Sandbox, Limit: ratelimit.Bounded(10), Window: ratelimit.Day()},
		{Tier: Free, Limit: ratelimit.Bounded(100), Window: ratelimit.Day()},
		{Tier: Professional, Limit: ratelimit.Bounded(10000), Window: ratelimit.Day(), FullAccess: true, Features: AllFeatures()},
		{Tier: Enterprise, Limit: ratelimit.Unbounded(), Window: ratelimit.Day(), FullAccess: true, Features: AllFeatures()},
	}
}

// Lookup returns the policy of a tier.
func (t *Table) Lookup(tier Tier) (Policy, bool) {
	p, ok := t.policies[tier]
	return p, ok
}

// MinimumTierFor returns the lowest assignable tier that includes f.
func (t *Table) MinimumTierFor(f Feature) (Tier, bool) {
	for _, candidate := range []Tier{Free, Professional, Enterprise} {
		if t.policies[candidate].Allows(f) {
			return candidate, true
		}
	}
	return "", false
}

// Descriptor is the public description of a tier.
type Descriptor struct {
	Limit    ratelimit.Limit `json:"limit"`
	Window   string          `json:"window"`
	Features []Feature       `json:"features"`
}

// Descriptors returns the public descriptors of the assignable tiers.
func (t *Table) Descriptors() map[Tier]Descriptor {
	out := make(map[Tier]Descriptor, 3)
	for tier, p := range t.policies {
		if !tier.Assignable() {
			continue
		}
		features := make([]Feature, len(p.Features))
		copy(features, p.Features)
		sort.Slice(features, func(i, j int) bool { return features[i] < features[j] })
		out[tier] = Descriptor{Limit: p.Limit, Window: p.Window.String(), Features: features}
	}
	return out
}
