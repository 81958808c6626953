package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// errEphemeralDecode marks a stored value that exists but no longer parses.
// Callers use it to tell data corruption apart from store transport errors:
// only the former may be discarded.
var errEphemeralDecode = errors.New("ephemeral value undecodable")

type EphemeralMode string

const (
	EphemeralMemory EphemeralMode = "memory"
	EphemeralRedis  EphemeralMode = "redis"
)

// EphemeralStore is a minimal key-value interface used for short-lived state
// (persisted sessions, parked admin snapshots, stock snapshots).
// Implementations should honor TTL on Set and treat missing keys as
// (found=false, err=nil).
type EphemeralStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	DelPrefix(ctx context.Context, prefix string) error
}

func (s *Service) WithEphemeralStore(store EphemeralStore, mode EphemeralMode) *Service {
	if mode == "" {
		mode = EphemeralMemory
	}
	s.store = store
	s.storeMode = mode
	return s
}

func (s *Service) EphemeralMode() EphemeralMode {
	if s == nil || s.storeMode == "" {
		return EphemeralMemory
	}
	return s.storeMode
}

func (s *Service) useEphemeralStore() bool {
	return s != nil && s.store != nil
}

// IsDevEnvironment reports whether the current ENV/APP_ENV/ENVIRONMENT is non-production.
func IsDevEnvironment() bool {
	return isDevEnvironment(getEnvironment())
}

func getEnvironment() string {
	for _, k := range []string{"ENV", "APP_ENV", "ENVIRONMENT"} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func isDevEnvironment(env string) bool {
	switch strings.ToLower(env) {
	case "prod", "production":
		return false
	}
	return true
}

func (s *Service) ephemSetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !s.useEphemeralStore() {
		return fmt.Errorf("ephemeral store unavailable")
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, key, b, ttl)
}

func (s *Service) ephemGetJSON(ctx context.Context, key string, out any) (bool, error) {
	if !s.useEphemeralStore() {
		return false, fmt.Errorf("ephemeral store unavailable")
	}
	b, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return true, fmt.Errorf("%w: %v", errEphemeralDecode, err)
	}
	return true, nil
}

func (s *Service) ephemDel(ctx context.Context, key string) error {
	if !s.useEphemeralStore() {
		return fmt.Errorf("ephemeral store unavailable")
	}
	return s.store.Del(ctx, key)
}
