// Package identity provides the caller identity value type produced by
// credential resolution.
package identity

import (
	"strings"

	"github.com/artpar/toolgate/domain/tier"
)

// Kind identifies how a caller was identified.
type Kind string

const (
	KindAPIKey      Kind = "api_key"
	KindAnonymousIP Kind = "anonymous_ip"
)

// UnknownIP is the shared bucket for sandbox traffic whose source address
// the transport could not supply.
const UnknownIP = "unknown"

// Identity is a resolved caller (immutable value type).
type Identity struct {
	// Key is the stable quota identity: the API key ID for key traffic,
	// the source IP for anonymous traffic. Raw secrets never appear here.
	Key    string
	Kind   Kind
	Tier   tier.Tier
	Active bool
	Owner  string // tenant owning the key; empty for anonymous traffic
}

// Anonymous returns the sandbox identity for a source IP.
func Anonymous(sourceIP string) Identity {
	ip := strings.TrimSpace(sourceIP)
	if ip == "" {
		ip = UnknownIP
	}
	return Identity{
		Key:    ip,
		Kind:   KindAnonymousIP,
		Tier:   tier.Sandbox,
		Active: true,
	}
}

// Scope returns the quota key namespace of the identity kind.
func (i Identity) Scope() string {
	if i.Kind == KindAnonymousIP {
		return "ip"
	}
	return "key"
}
