package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/artpar/toolgate/adapters/clock"
	"github.com/artpar/toolgate/adapters/sqlite"
	"github.com/artpar/toolgate/domain/identity"
	"github.com/artpar/toolgate/domain/key"
	"github.com/artpar/toolgate/domain/tier"
	"github.com/artpar/toolgate/domain/tool"
	"github.com/artpar/toolgate/domain/usage"
	"github.com/artpar/toolgate/domain/webhook"
	"github.com/artpar/toolgate/ports"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "toolgate-test.db")
	db, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	before, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if before != "001_init" {
		t.Errorf("SchemaVersion() = %q, want 001_init", before)
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	var applied int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
		t.Fatal(err)
	}
	if applied != 1 {
		t.Errorf("schema_migrations rows = %d, want 1", applied)
	}
}

// -----------------------------------------------------------------------------
// KeyStore Tests
// -----------------------------------------------------------------------------

func TestKeyStore_CreateAndLookup(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewKeyStore(db)
	ctx := context.Background()

	expires := baseTime.Add(30 * 24 * time.Hour)
	k := key.Key{
		ID:        "key_1",
		Owner:     "acme",
		Name:      "ci",
		Prefix:    "tk_0123456789",
		Hash:      []byte("hash"),
		Tier:      tier.Free,
		ExpiresAt: &expires,
		CreatedAt: baseTime,
	}
	if err := store.Create(ctx, k); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Create(ctx, k); !errors.Is(err, ports.ErrConflict) {
		t.Errorf("duplicate Create() error = %v, want ErrConflict", err)
	}

	found, err := store.GetByPrefix(ctx, k.Prefix)
	if err != nil {
		t.Fatalf("GetByPrefix() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("GetByPrefix() returned %d keys", len(found))
	}
	got := found[0]
	if got.Owner != "acme" || got.Tier != tier.Free || string(got.Hash) != "hash" {
		t.Errorf("unexpected key %+v", got)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expires)
	}
	if got.RevokedAt != nil {
		t.Errorf("RevokedAt = %v, want nil", got.RevokedAt)
	}
	if !got.CreatedAt.Equal(baseTime) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, baseTime)
	}
}

func TestKeyStore_RevokeAndSetTier(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewKeyStore(db)
	ctx := context.Background()

	store.Create(ctx, key.Key{ID: "key_1", Owner: "acme", Prefix: "p", Hash: []byte("h"), Tier: tier.Free, CreatedAt: baseTime})

	if err := store.SetTier(ctx, "key_1", tier.Enterprise); err != nil {
		t.Fatalf("SetTier() error = %v", err)
	}
	if err := store.Revoke(ctx, "key_1", baseTime); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if err := store.Revoke(ctx, "key_1", baseTime.Add(time.Hour)); err != nil {
		t.Fatalf("second Revoke() error = %v", err)
	}

	got, err := store.Get(ctx, "key_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Tier != tier.Enterprise {
		t.Errorf("Tier = %q", got.Tier)
	}
	if got.RevokedAt == nil || !got.RevokedAt.Equal(baseTime) {
		t.Errorf("RevokedAt = %v, want first revocation", got.RevokedAt)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
	if err := store.Revoke(ctx, "missing", baseTime); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Revoke(missing) error = %v", err)
	}
	if err := store.SetTier(ctx, "missing", tier.Free); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("SetTier(missing) error = %v", err)
	}
}

func TestKeyStore_ListByOwner(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewKeyStore(db)
	ctx := context.Background()

	store.Create(ctx, key.Key{ID: "old", Owner: "acme", Prefix: "a", Hash: []byte("h"), Tier: tier.Free, CreatedAt: baseTime})
	store.Create(ctx, key.Key{ID: "new", Owner: "acme", Prefix: "b", Hash: []byte("h"), Tier: tier.Free, CreatedAt: baseTime.Add(time.Hour)})
	store.Create(ctx, key.Key{ID: "x", Owner: "globex", Prefix: "c", Hash: []byte("h"), Tier: tier.Free, CreatedAt: baseTime})

	keys, err := store.ListByOwner(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0].ID != "new" || keys[1].ID != "old" {
		t.Errorf("ListByOwner() = %+v", keys)
	}
}

// -----------------------------------------------------------------------------
// QuotaStore Tests
// -----------------------------------------------------------------------------

func TestQuotaStore_Increment(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFake(baseTime)
	store := sqlite.NewQuotaStore(db, clk)
	ctx := context.Background()
	expires := baseTime.Add(time.Hour)

	for want := int64(1); want <= 5; want++ {
		got, err := store.Increment(ctx, "key:k1:2024-01-15", expires)
		if err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
		if got != want {
			t.Errorf("Increment() = %d, want %d", got, want)
		}
	}

	if n, _ := store.Peek(ctx, "key:k1:2024-01-15"); n != 5 {
		t.Errorf("Peek() = %d, want 5", n)
	}
	if n, _ := store.Peek(ctx, "key:other"); n != 0 {
		t.Errorf("Peek(missing) = %d, want 0", n)
	}

	// Past expiry the counter restarts.
	clk.Advance(2 * time.Hour)
	got, err := store.Increment(ctx, "key:k1:2024-01-15", clk.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("Increment() after expiry = %d, want 1", got)
	}
}

func TestQuotaStore_CleanupExpired(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewQuotaStore(db, clock.NewFake(baseTime))
	ctx := context.Background()

	store.Increment(ctx, "a", baseTime.Add(time.Minute))
	store.Increment(ctx, "b", baseTime.Add(time.Hour))

	removed, err := store.CleanupExpired(ctx, baseTime.Add(10*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("CleanupExpired() removed %d, want 1", removed)
	}
}

func TestQuotaStore_ConcurrentIncrementsAreDistinct(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewQuotaStore(db, nil)
	ctx := context.Background()

	const n = 40
	results := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := store.Increment(ctx, "key:hot", time.Now().Add(time.Hour))
			if err != nil {
				t.Errorf("Increment() error = %v", err)
				return
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, v := range results {
		if v < 1 || v > n || seen[v] {
			t.Fatalf("value %d out of range or duplicated", v)
		}
		seen[v] = true
	}
}

// -----------------------------------------------------------------------------
// UsageStore Tests
// -----------------------------------------------------------------------------

func TestUsageStore_RecordAndList(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	who := identity.Identity{Key: "key_1", Kind: identity.KindAPIKey, Tier: tier.Professional, Owner: "acme"}
	records := []usage.Record{
		usage.NewRecord("r1", who, "GET", "/api/tools", "10.0.0.1", baseTime.Add(-time.Hour)),
		usage.NewRecord("r2", who, "GET", "/api/tools/claude", "10.0.0.1", baseTime),
		usage.NewRecord("r3", who, "GET", "/api/compare", "10.0.0.1", baseTime.Add(time.Minute)),
		usage.NewRecord("r4", identity.Anonymous("1.2.3.4"), "GET", "/api/sandbox/tools", "1.2.3.4", baseTime),
	}
	if err := store.RecordBatch(ctx, records); err != nil {
		t.Fatalf("RecordBatch() error = %v", err)
	}
	if err := store.RecordBatch(ctx, nil); err != nil {
		t.Fatalf("empty RecordBatch() error = %v", err)
	}

	got, err := store.ListByIdentity(ctx, "key_1", baseTime, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "r3" || got[1].ID != "r2" {
		t.Fatalf("ListByIdentity() = %+v", got)
	}
	if got[0].Tier != tier.Professional || got[0].Kind != identity.KindAPIKey || got[0].Owner != "acme" {
		t.Errorf("fields not round-tripped: %+v", got[0])
	}
	if !got[1].Timestamp.Equal(baseTime) {
		t.Errorf("Timestamp = %v, want %v", got[1].Timestamp, baseTime)
	}

	limited, _ := store.ListByIdentity(ctx, "key_1", time.Time{}, 2)
	if len(limited) != 2 {
		t.Errorf("limit not applied: %d", len(limited))
	}
}

// -----------------------------------------------------------------------------
// WebhookStore Tests
// -----------------------------------------------------------------------------

func TestWebhookStore(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewWebhookStore(db)
	ctx := context.Background()

	reg := webhook.Registration{
		ID:        "wh_1",
		Owner:     "acme",
		URL:       "https://example.com/hook",
		Events:    []webhook.EventType{webhook.EventToolCreated, webhook.EventToolUpdated},
		Secret:    "whsec_x",
		CreatedAt: baseTime,
	}
	if err := store.Create(ctx, reg, 0); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, reg, 0); !errors.Is(err, ports.ErrConflict) {
		t.Errorf("duplicate Create() error = %v", err)
	}

	got, err := store.Get(ctx, "wh_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Owner != "acme" || len(got.Events) != 2 || got.Secret != "whsec_x" {
		t.Errorf("Get() = %+v", got)
	}

	if n, _ := store.CountByOwner(ctx, "acme"); n != 1 {
		t.Errorf("CountByOwner() = %d", n)
	}
	if list, _ := store.ListByOwner(ctx, "globex"); len(list) != 0 {
		t.Errorf("ListByOwner(globex) = %+v", list)
	}

	if err := store.Delete(ctx, "wh_1"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "wh_1"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("second Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "wh_1"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Get() after delete error = %v", err)
	}
}

func TestWebhookStore_CapIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewWebhookStore(db)
	ctx := context.Background()

	const limit, attempts = 3, 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		capped  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.Create(ctx, webhook.Registration{
				ID:        fmt.Sprintf("wh_%d", i),
				Owner:     "acme",
				URL:       "https://example.com/hook",
				Events:    []webhook.EventType{webhook.EventToolCreated},
				Secret:    "whsec_x",
				CreatedAt: baseTime,
			}, limit)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ports.ErrLimitReached):
				capped++
			default:
				t.Errorf("Create() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if created != limit || capped != attempts-limit {
		t.Errorf("created %d, capped %d; want %d and %d", created, capped, limit, attempts-limit)
	}
	if n, _ := store.CountByOwner(ctx, "acme"); n != limit {
		t.Errorf("CountByOwner() = %d, want %d", n, limit)
	}

	// The cap is per owner.
	other := webhook.Registration{ID: "wh_other", Owner: "globex", URL: "https://example.com", Secret: "whsec_y", CreatedAt: baseTime}
	if err := store.Create(ctx, other, limit); err != nil {
		t.Errorf("Create() for another owner error = %v", err)
	}
}

// -----------------------------------------------------------------------------
// ToolStore Tests
// -----------------------------------------------------------------------------

func TestToolStore(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewToolStore(db)
	ctx := context.Background()

	for _, tl := range []tool.Tool{
		{Slug: "gemini", Name: "Gemini", Category: "assistant", OverallScore: 8.1, UpdatedAt: baseTime},
		{Slug: "claude", Name: "Claude", Category: "assistant", OverallScore: 9.2, Pricing: "$20", UpdatedAt: baseTime},
		{Slug: "cursor", Name: "Cursor", Category: "ide", UpdatedAt: baseTime},
	} {
		created, err := store.Upsert(ctx, tl)
		if err != nil {
			t.Fatal(err)
		}
		if !created {
			t.Errorf("Upsert(%s) created = false", tl.Slug)
		}
	}

	all, err := store.List(ctx, tool.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Slug != "claude" || all[0].Pricing != "$20" {
		t.Errorf("List() = %+v", all)
	}
	if ide, _ := store.List(ctx, tool.Filter{Category: "IDE"}); len(ide) != 1 {
		t.Errorf("List(category) = %+v", ide)
	}
	if page, _ := store.List(ctx, tool.Filter{Limit: 1, Offset: 2}); len(page) != 1 || page[0].Slug != "gemini" {
		t.Errorf("List(page) = %+v", page)
	}

	created, err := store.Upsert(ctx, tool.Tool{Slug: "claude", Name: "Claude", OverallScore: 9.4, UpdatedAt: baseTime})
	if err != nil || created {
		t.Errorf("Upsert(existing) = %v, %v", created, err)
	}
	got, _ := store.Get(ctx, "claude")
	if got.OverallScore != 9.4 {
		t.Errorf("OverallScore = %v, want 9.4", got.OverallScore)
	}

	many, _ := store.GetMany(ctx, []string{"cursor", "nope", "claude"})
	if len(many) != 2 || many[0].Slug != "cursor" {
		t.Errorf("GetMany() = %+v", many)
	}
	if _, err := store.Get(ctx, "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
}

func TestToolStore_Changelog(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewToolStore(db)
	ctx := context.Background()

	store.Upsert(ctx, tool.Tool{Slug: "claude", Name: "Claude", UpdatedAt: baseTime})

	if err := store.AppendChangelog(ctx, tool.ChangelogEntry{Slug: "claude", Version: "1.0", Date: baseTime, Summary: "initial"}); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendChangelog(ctx, tool.ChangelogEntry{Slug: "claude", Version: "1.1", Date: baseTime.Add(time.Hour), Summary: "rescored", Changes: []string{"reasoning +0.2"}}); err != nil {
		t.Fatal(err)
	}

	entries, err := store.Changelog(ctx, "claude")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Version != "1.1" || len(entries[0].Changes) != 1 {
		t.Errorf("Changelog() = %+v", entries)
	}
	if entries[1].Changes == nil || len(entries[1].Changes) != 0 {
		t.Errorf("empty changes should decode to an empty list, got %v", entries[1].Changes)
	}

	if _, err := store.Changelog(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Changelog(missing) error = %v", err)
	}
	if err := store.AppendChangelog(ctx, tool.ChangelogEntry{Slug: "missing", Version: "1", Summary: "x"}); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("AppendChangelog(missing) error = %v", err)
	}
}
