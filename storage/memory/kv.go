package memorystore

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value    []byte
	deadline time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// KV is an in-memory key-value store with per-key TTLs. Expired entries are
// reaped lazily on read. Only suitable for single-process deployments.
type KV struct {
	mu      sync.Mutex
	entries map[string]entry
}

func NewKV() *KV {
	return &KV{entries: map[string]entry{}}
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		delete(k.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = ctx
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.deadline = time.Now().Add(ttl)
	}
	k.mu.Lock()
	k.entries[key] = e
	k.mu.Unlock()
	return nil
}

func (k *KV) Del(ctx context.Context, key string) error {
	_ = ctx
	k.mu.Lock()
	delete(k.entries, key)
	k.mu.Unlock()
	return nil
}

// DelPrefix removes every key that starts with prefix. Used to drop all
// cached identities at trust-boundary transitions (login, impersonation,
// sign-out).
func (k *KV) DelPrefix(ctx context.Context, prefix string) error {
	_ = ctx
	k.mu.Lock()
	defer k.mu.Unlock()
	for key := range k.entries {
		if strings.HasPrefix(key, prefix) {
			delete(k.entries, key)
		}
	}
	return nil
}
