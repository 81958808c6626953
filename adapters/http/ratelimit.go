package otphttp

import (
	"time"

	memorylimiter "github.com/otpbuy/otpbuy/ratelimit/memory"
	redislimiter "github.com/otpbuy/otpbuy/ratelimit/redis"
)

// RateLimiter is a minimal interface used by the adapter. It fails open on
// limiter error.
type RateLimiter interface {
	AllowNamed(bucket string, key string) (bool, error)
}

// Limit configures a named rate limit bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

// DefaultRateLimits returns the built-in per-endpoint rate limits, enforced
// per client IP. Hosts can override by supplying their own limiter via
// WithRateLimiter(...).
func DefaultRateLimits() map[string]Limit {
	return map[string]Limit{
		"default": {Limit: 120, Window: time.Minute},

		RLAuthRegister: {Limit: 10, Window: time.Hour},
		RLAuthLogin:    {Limit: 20, Window: time.Hour},
		RLAuthLogout:   {Limit: 60, Window: 10 * time.Minute},
		RLAuthSession:  {Limit: 120, Window: time.Minute},

		RLWalletBalance: {Limit: 120, Window: time.Minute},
		RLWalletTxns:    {Limit: 60, Window: time.Minute},
		RLPromoRedeem:   {Limit: 10, Window: 10 * time.Minute},

		RLNumberAcquire: {Limit: 20, Window: 10 * time.Minute},
		RLNumberList:    {Limit: 120, Window: time.Minute},
		RLNumberCancel:  {Limit: 30, Window: 10 * time.Minute},
		RLNumberPoll:    {Limit: 300, Window: time.Minute},

		RLStockGet: {Limit: 60, Window: time.Minute},

		RLPayInitiate:  {Limit: 10, Window: 10 * time.Minute},
		RLPayVerify:    {Limit: 60, Window: 10 * time.Minute},
		RLPayManualUTR: {Limit: 6, Window: 10 * time.Minute},

		RLAdminRead:        {Limit: 600, Window: time.Minute},
		RLAdminWrite:       {Limit: 120, Window: time.Minute},
		RLAdminImpersonate: {Limit: 30, Window: time.Hour},
	}
}

func ToMemoryLimits(in map[string]Limit) map[string]memorylimiter.Limit {
	out := make(map[string]memorylimiter.Limit, len(in))
	for k, v := range in {
		out[k] = memorylimiter.Limit{Limit: v.Limit, Window: v.Window}
	}
	return out
}

func ToRedisLimits(in map[string]Limit) map[string]redislimiter.Limit {
	out := make(map[string]redislimiter.Limit, len(in))
	for k, v := range in {
		out[k] = redislimiter.Limit{Limit: v.Limit, Window: v.Window}
	}
	return out
}
