// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/toolgate/domain/key"
	"github.com/artpar/toolgate/domain/tier"
	"github.com/artpar/toolgate/domain/tool"
	"github.com/artpar/toolgate/domain/usage"
	"github.com/artpar/toolgate/domain/webhook"
)

// ErrNotFound is returned by stores when an entity does not exist.
// Adapters wrap or return it so callers can test with errors.Is.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a create collides with an existing entity.
var ErrConflict = errors.New("already exists")

// ErrLimitReached is returned when a create would exceed a per-owner cap.
var ErrLimitReached = errors.New("limit reached")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Random supplies secret material.
type Random interface {
	// Bytes returns n random bytes.
	Bytes(n int) ([]byte, error)
}

// Hasher hashes and compares secrets.
type Hasher interface {
	// Hash creates a hash of the secret.
	Hash(secret string) ([]byte, error)

	// Compare checks if secret matches hash.
	Compare(hash []byte, secret string) bool
}

// -----------------------------------------------------------------------------
// Quota Port
// -----------------------------------------------------------------------------

// QuotaStore is the shared counter primitive behind rate limiting.
// Increment must be atomic across every gateway instance sharing the store:
// N concurrent increments of one key return N distinct values 1..N.
type QuotaStore interface {
	// Increment adds one to the counter and returns the post-increment value.
	// The counter may be discarded any time after expiresAt.
	Increment(ctx context.Context, counterKey string, expiresAt time.Time) (int64, error)

	// Peek returns the current value without incrementing (0 if absent).
	Peek(ctx context.Context, counterKey string) (int64, error)
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// KeyStore persists API keys. Revoked keys are kept, never deleted.
type KeyStore interface {
	// GetByPrefix retrieves keys matching a lookup prefix (for validation).
	GetByPrefix(ctx context.Context, prefix string) ([]key.Key, error)

	// Get retrieves a key by ID.
	Get(ctx context.Context, id string) (key.Key, error)

	// Create stores a new key.
	Create(ctx context.Context, k key.Key) error

	// Revoke marks a key as revoked.
	Revoke(ctx context.Context, id string, at time.Time) error

	// SetTier changes the tier of a key.
	SetTier(ctx context.Context, id string, t tier.Tier) error

	// ListByOwner returns all keys of a tenant, newest first.
	ListByOwner(ctx context.Context, owner string) ([]key.Key, error)
}

// UsageStore persists usage records.
type UsageStore interface {
	// RecordBatch appends multiple records.
	RecordBatch(ctx context.Context, records []usage.Record) error

	// ListByIdentity returns records of one identity since a time, newest first.
	ListByIdentity(ctx context.Context, identityKey string, since time.Time, limit int) ([]usage.Record, error)
}

// WebhookStore persists webhook registrations.
type WebhookStore interface {
	// Create stores r unless its owner already holds maxPerOwner
	// registrations, in which case it returns ErrLimitReached. The count and
	// the insert are one atomic step. maxPerOwner <= 0 disables the cap.
	Create(ctx context.Context, r webhook.Registration, maxPerOwner int) error
	Get(ctx context.Context, id string) (webhook.Registration, error)
	ListByOwner(ctx context.Context, owner string) ([]webhook.Registration, error)
	CountByOwner(ctx context.Context, owner string) (int, error)
	Delete(ctx context.Context, id string) error
}

// ToolStore persists tool records and their changelogs.
type ToolStore interface {
	// List returns tools ordered by slug.
	List(ctx context.Context, f tool.Filter) ([]tool.Tool, error)

	// Get retrieves a tool by slug.
	Get(ctx context.Context, slug string) (tool.Tool, error)

	// GetMany retrieves tools by slug, preserving order. Missing slugs are omitted.
	GetMany(ctx context.Context, slugs []string) ([]tool.Tool, error)

	// Upsert creates or replaces a tool. created is true for new slugs.
	Upsert(ctx context.Context, t tool.Tool) (created bool, err error)

	// Changelog returns a tool's changelog, newest first.
	Changelog(ctx context.Context, slug string) ([]tool.ChangelogEntry, error)

	// AppendChangelog adds an entry to an existing tool's changelog.
	AppendChangelog(ctx context.Context, e tool.ChangelogEntry) error
}

// -----------------------------------------------------------------------------
// Service Ports
// -----------------------------------------------------------------------------

// UsageRecorder records usage records asynchronously.
// Record must never block the request path.
type UsageRecorder interface {
	// Record queues a record for storage. Never blocks.
	Record(r usage.Record)

	// Flush forces pending records to be written.
	Flush(ctx context.Context) error

	// Close flushes and stops the recorder.
	Close() error
}
