package core

import (
	"context"
	"crypto/rand"
	"fmt"
	stdlog "log"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otpbuy/otpbuy/provider"
)

// Keyset holds the HMAC signing secrets by KID. The active KID signs new
// tokens; all listed KIDs verify.
type Keyset struct {
	ActiveKID string
	Keys      map[string][]byte
}

// Notifier receives user-facing events (the toast analog). Implementations
// must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, userID, kind, text string)
}

// LogNotifier writes notifications to the process log. Used when no push
// channel is wired.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, userID, kind, text string) {
	stdlog.Printf("[otpbuy/notify] user=%s kind=%s %s", userID, kind, text)
}

// ProviderResolver returns an upstream SMS-provider client for a server row's
// provider kind and API key. *provider.Registry satisfies this.
type ProviderResolver interface {
	Resolve(ctx context.Context, kind, apiKey string) (provider.Client, error)
}

// Service is the core OTPBUY service used by HTTP adapters, pollers, and jobs.
type Service struct {
	opts      Options
	keys      Keyset
	pg        *pgxpool.Pool
	store     EphemeralStore
	storeMode EphemeralMode
	perms     *PermissionCache
	providers ProviderResolver
	notifier  Notifier
}

func NewService(opts Options, keys Keyset) *Service {
	if opts.RoleCacheTTL <= 0 {
		opts.RoleCacheTTL = 30 * time.Second
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * 24 * time.Hour
	}
	if opts.ActivationWindow <= 0 {
		opts.ActivationWindow = 20 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &Service{
		opts:      opts,
		keys:      keys,
		storeMode: EphemeralMemory,
		perms:     NewPermissionCache(opts.RoleCacheTTL),
		notifier:  LogNotifier{},
	}
}

// NewFromConfig creates a Service from high-level Config.
func NewFromConfig(cfg Config) (*Service, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("otpbuy: Issuer is required (e.g., \"https://otpbuy.example\")")
	}
	issued := cfg.IssuedAudiences
	if len(issued) == 0 {
		return nil, fmt.Errorf("otpbuy: IssuedAudiences is required (e.g., []string{\"otpbuy\"})")
	}
	expected := cfg.ExpectedAudiences
	if len(expected) == 0 {
		expected = issued
	}

	keys := cfg.Keys
	kid := strings.TrimSpace(cfg.ActiveKID)
	if len(keys) == 0 {
		if strings.TrimSpace(cfg.TokenSecret) == "" {
			return nil, fmt.Errorf("otpbuy: TokenSecret or Keys is required")
		}
		if kid == "" {
			kid = "primary"
		}
		keys = map[string][]byte{kid: []byte(cfg.TokenSecret)}
	}
	if kid == "" {
		return nil, fmt.Errorf("otpbuy: ActiveKID is required when Keys is set")
	}
	if _, ok := keys[kid]; !ok {
		return nil, fmt.Errorf("otpbuy: ActiveKID %q not present in Keys", kid)
	}

	accessTTL := cfg.AccessTokenDuration
	if accessTTL == 0 {
		accessTTL = time.Hour
	}
	opts := Options{
		Issuer:              cfg.Issuer,
		IssuedAudiences:     issued,
		ExpectedAudiences:   expected,
		AccessTokenDuration: accessTTL,
		SessionTTL:          cfg.SessionTTL,
		RoleCacheTTL:        cfg.RoleCacheTTL,
		ActivationWindow:    cfg.ActivationWindow,
		PollInterval:        cfg.PollInterval,
		BaseURL:             cfg.BaseURL,
	}
	return NewService(opts, Keyset{ActiveKID: kid, Keys: keys}), nil
}

// Options exposes immutable configuration for callers that need to validate claims.
func (s *Service) Options() Options { return s.opts }

// WithPostgres attaches a pgx pool to the service.
func (s *Service) WithPostgres(pool *pgxpool.Pool) *Service { s.pg = pool; return s }

// Postgres returns the attached pgx pool (may be nil).
func (s *Service) Postgres() *pgxpool.Pool { return s.pg }

// WithProviders sets the upstream SMS-provider resolver.
func (s *Service) WithProviders(r ProviderResolver) *Service { s.providers = r; return s }

// WithNotifier sets the user notification sink.
func (s *Service) WithNotifier(n Notifier) *Service {
	if n != nil {
		s.notifier = n
	}
	return s
}

// PermissionCacheRef returns the shared role/permission cache so adapters can
// invalidate it at trust-boundary transitions.
func (s *Service) PermissionCacheRef() *PermissionCache { return s.perms }

// IssueAccessToken builds and signs an access token (JWT) for the given user.
// Extra claims in `extra` are merged into the token body (e.g., sid).
func (s *Service) IssueAccessToken(ctx context.Context, userID, email string, extra map[string]any) (token string, expiresAt time.Time, err error) {
	now := time.Now()
	expiresAt = now.Add(s.opts.AccessTokenDuration)
	var role string
	if s.pg != nil {
		if rec, rerr := s.GetAdminRole(ctx, userID); rerr == nil {
			role = rec.Role
		}
	}
	claims := jwt.MapClaims{
		"iss":   s.opts.Issuer,
		"sub":   userID,
		"aud":   s.opts.IssuedAudiences,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
		"email": email,
		"role":  role,
	}
	for k, v := range extra {
		claims[k] = v
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = s.keys.ActiveKID
	signed, err := tok.SignedString(s.keys.Keys[s.keys.ActiveKID])
	return signed, expiresAt, err
}

// Keyfunc looks up a signing secret by KID, falling back to the active key
// if the header carries none.
func (s *Service) Keyfunc() func(token *jwt.Token) (any, error) {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		if kid, _ := token.Header["kid"].(string); kid != "" {
			if key, ok := s.keys.Keys[kid]; ok {
				return key, nil
			}
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.keys.Keys[s.keys.ActiveKID], nil
	}
}

func errOrUnauthorized(err error) error {
	if err != nil {
		return err
	}
	return jwt.ErrTokenInvalidClaims
}

func randBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}
