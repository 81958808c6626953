package core

import (
	"errors"
	"testing"
	"time"
)

func TestPermissionCacheTTL(t *testing.T) {
	now := time.Unix(1000, 0)
	cache := NewPermissionCache(30 * time.Second).WithClock(func() time.Time { return now })

	fetches := 0
	fetch := func() (Permissions, error) {
		fetches++
		return DerivePermissions(RoleRecord{Role: "manager", Level: LevelManager}), nil
	}

	p := cache.Load("u1", fetch)
	if !p.IsManager {
		t.Fatalf("expected manager permissions, got %+v", p)
	}
	if fetches != 1 {
		t.Fatalf("fetches = %d, want 1", fetches)
	}

	// Just under the TTL the snapshot is still served from cache.
	now = now.Add(29 * time.Second)
	cache.Load("u1", fetch)
	if fetches != 1 {
		t.Fatalf("fetches = %d after 29s, want 1", fetches)
	}

	// At the TTL boundary the entry is stale and refetched.
	now = now.Add(time.Second)
	cache.Load("u1", fetch)
	if fetches != 2 {
		t.Fatalf("fetches = %d after 30s, want 2", fetches)
	}
}

func TestPermissionCacheFailureNotCached(t *testing.T) {
	cache := NewPermissionCache(30 * time.Second)

	fetches := 0
	failing := func() (Permissions, error) {
		fetches++
		return NoAccess(), errors.New("db down")
	}

	p := cache.Load("u1", failing)
	if p.IsAdmin {
		t.Fatalf("failed fetch must publish NoAccess, got %+v", p)
	}

	// The failure must not stick; the next call retries the fetch.
	cache.Load("u1", failing)
	if fetches != 2 {
		t.Fatalf("fetches = %d, want 2 (failures are never cached)", fetches)
	}

	// A later success is cached normally.
	ok := func() (Permissions, error) {
		return DerivePermissions(RoleRecord{Role: "support", Level: LevelHandler}), nil
	}
	if p := cache.Load("u1", ok); !p.IsAdmin {
		t.Fatalf("expected handler permissions, got %+v", p)
	}
	cache.Load("u1", func() (Permissions, error) {
		t.Fatal("fetch called for fresh entry")
		return NoAccess(), nil
	})
}

func TestPermissionCacheInvalidateAll(t *testing.T) {
	now := time.Unix(1000, 0)
	cache := NewPermissionCache(30 * time.Second).WithClock(func() time.Time { return now })

	fetches := 0
	fetch := func() (Permissions, error) {
		fetches++
		return DerivePermissions(RoleRecord{Role: "owner", Level: LevelOwner, IsOwner: true}), nil
	}

	cache.Load("u1", fetch)
	cache.Load("u2", fetch)
	if fetches != 2 {
		t.Fatalf("fetches = %d, want 2", fetches)
	}

	cache.InvalidateAll()

	cache.Load("u1", fetch)
	cache.Load("u2", fetch)
	if fetches != 4 {
		t.Fatalf("fetches = %d after invalidate, want 4", fetches)
	}
}
