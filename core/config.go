package core

import "time"

// Config is the high-level configuration consumed by NewFromConfig.
type Config struct {
	Issuer          string
	IssuedAudiences []string // JWT audiences - tokens issued will contain ALL of these audiences
	// ExpectedAudiences enforces that verified access tokens contain at least one
	// of these audiences.
	ExpectedAudiences   []string
	AccessTokenDuration time.Duration

	// TokenSecret is the active HMAC signing secret. Keys maps KID -> secret for
	// rotation; when empty, TokenSecret is installed under the "primary" KID.
	TokenSecret string
	Keys        map[string][]byte
	ActiveKID   string

	// SessionTTL bounds the persisted session blobs (active user + parked admin).
	// 0 uses the default of 30 days.
	SessionTTL time.Duration

	// RoleCacheTTL is the validity window for cached role/permission snapshots.
	// 0 uses the default of 30 seconds.
	RoleCacheTTL time.Duration

	// ActivationWindow is how long a rented number may stay active before the
	// expiry sweep auto-cancels and refunds it. 0 uses the default of 20 minutes.
	ActivationWindow time.Duration

	// PollInterval is the delay between activation status polls. 0 uses 5 seconds.
	PollInterval time.Duration

	// Optional: if set, used for building absolute URLs in notifications.
	BaseURL string
}

// Options exposes the resolved, immutable runtime configuration.
type Options struct {
	Issuer              string
	IssuedAudiences     []string
	ExpectedAudiences   []string
	AccessTokenDuration time.Duration
	SessionTTL          time.Duration
	RoleCacheTTL        time.Duration
	ActivationWindow    time.Duration
	PollInterval        time.Duration
	BaseURL             string
}
