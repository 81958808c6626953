package core

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// PermissionEntry is a cached permission snapshot with its fetch time.
// An entry is valid only while now - FetchedAt < TTL; stale entries are
// overwritten on the next fetch, never evicted proactively.
type PermissionEntry struct {
	Perms     Permissions
	FetchedAt time.Time
}

// PermissionCache is an injectable, time-bounded cache of derived permission
// snapshots keyed by user id. It is shared process-wide and must be
// invalidated at trust-boundary transitions (login, impersonation, sign-out)
// so one identity's permissions never leak into another's session.
type PermissionCache struct {
	mu      sync.Mutex
	entries map[string]PermissionEntry
	ttl     time.Duration
	now     func() time.Time
	sf      singleflight.Group
}

func NewPermissionCache(ttl time.Duration) *PermissionCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &PermissionCache{
		entries: make(map[string]PermissionEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock overrides the cache clock. Test hook.
func (c *PermissionCache) WithClock(now func() time.Time) *PermissionCache {
	c.now = now
	return c
}

// Get returns the entry for key and whether it is still fresh.
func (c *PermissionCache) Get(key string) (PermissionEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return PermissionEntry{}, false
	}
	if c.now().Sub(e.FetchedAt) >= c.ttl {
		return e, false
	}
	return e, true
}

// Put stores a freshly derived snapshot for key.
func (c *PermissionCache) Put(key string, perms Permissions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = PermissionEntry{Perms: perms, FetchedAt: c.now()}
}

// InvalidateAll drops every cached identity.
func (c *PermissionCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]PermissionEntry)
}

// Load serves key from cache when fresh, otherwise runs fetch, caching the
// result only on success. Concurrent callers for the same key share a single
// in-flight fetch; losers receive the leader's result.
func (c *PermissionCache) Load(key string, fetch func() (Permissions, error)) Permissions {
	if e, ok := c.Get(key); ok {
		return e.Perms
	}
	v, err, _ := c.sf.Do(key, func() (any, error) {
		p, err := fetch()
		if err != nil {
			return p, err
		}
		c.Put(key, p)
		return p, nil
	})
	if err != nil {
		return NoAccess()
	}
	return v.(Permissions)
}
