package app

import (
	"context"
	"time"

	"github.com/artpar/toolgate/domain/gateway"
	"github.com/artpar/toolgate/domain/identity"
	"github.com/artpar/toolgate/domain/key"
	"github.com/artpar/toolgate/ports"
)

// Authentication failure reasons reported alongside Unauthenticated errors.
const (
	ReasonMissingCredential = "missing_credential"
	ReasonStoreError        = "store_error"
)

// IdentityResolver turns a credential or source address into an Identity.
// Resolution has no side effects.
type IdentityResolver struct {
	keys      ports.KeyStore
	hasher    ports.Hasher
	clock     ports.Clock
	keyPrefix string
	timeout   time.Duration
}

// ResolverConfig contains configuration for IdentityResolver.
type ResolverConfig struct {
	KeyPrefix    string
	StoreTimeout time.Duration
}

// NewIdentityResolver creates a resolver over the key store.
func NewIdentityResolver(keys ports.KeyStore, hasher ports.Hasher, clock ports.Clock, cfg ResolverConfig) *IdentityResolver {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = key.DefaultPrefix
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	return &IdentityResolver{
		keys:      keys,
		hasher:    hasher,
		clock:     clock,
		keyPrefix: cfg.KeyPrefix,
		timeout:   cfg.StoreTimeout,
	}
}

// Resolution is the outcome of resolving a credential.
type Resolution struct {
	Identity identity.Identity
	Reason   string // failure reason, empty on success
}

// Anonymous resolves sandbox traffic to the caller's source address.
func (r *IdentityResolver) Anonymous(sourceIP string) identity.Identity {
	return identity.Anonymous(sourceIP)
}

// Resolve authenticates an API key credential.
func (r *IdentityResolver) Resolve(ctx context.Context, credential string) (Resolution, *gateway.Error) {
	if credential == "" {
		return Resolution{Reason: ReasonMissingCredential}, gateway.Unauthenticated(gateway.MsgMissingCredential)
	}

	// 1. Validate format (PURE)
	prefix, ok := key.ValidateFormat(credential, r.keyPrefix)
	if !ok {
		return Resolution{Reason: key.ReasonBadFormat}, gateway.Unauthenticated(gateway.MsgInvalidCredential)
	}

	// 2. Lookup candidates (I/O)
	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	candidates, err := r.keys.GetByPrefix(lookupCtx, prefix)
	cancel()
	if err != nil {
		return Resolution{Reason: ReasonStoreError}, gateway.Internal(err)
	}

	// 3. Compare hashes; the stored state is only consulted for the match.
	for _, k := range candidates {
		if !r.hasher.Compare(k.Hash, credential) {
			continue
		}
		v := key.Validate(k, r.clock.Now())
		if !v.Valid {
			return Resolution{Reason: v.Reason}, gateway.Unauthenticated(gateway.MsgInvalidCredential)
		}
		return Resolution{Identity: identity.Identity{
			Key:    k.ID,
			Kind:   identity.KindAPIKey,
			Tier:   k.Tier,
			Active: true,
			Owner:  k.Owner,
		}}, nil
	}

	return Resolution{Reason: key.ReasonNotFound}, gateway.Unauthenticated(gateway.MsgInvalidCredential)
}
