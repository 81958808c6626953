// Package memorylimiter is a fixed-window, in-process rate limiter for
// single-instance deployments.
package memorylimiter

import (
	"sync"
	"time"
)

// Limit configures a named bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

type window struct {
	count int
	reset time.Time
}

type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	windows map[string]*window
	now     func() time.Time
}

func New(limits map[string]Limit) *Limiter {
	return &Limiter{limits: limits, windows: map[string]*window{}, now: time.Now}
}

// WithClock overrides the clock. Test hook.
func (l *Limiter) WithClock(now func() time.Time) *Limiter { l.now = now; return l }

// AllowNamed consumes one unit from the bucket for key. Unknown buckets fall
// back to the "default" limit; with no default configured the call allows.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limits[bucket]
	if !ok {
		lim, ok = l.limits["default"]
		if !ok {
			return true, nil
		}
	}
	if lim.Limit <= 0 || lim.Window <= 0 {
		return true, nil
	}

	now := l.now()
	w := l.windows[key]
	if w == nil || now.After(w.reset) {
		l.windows[key] = &window{count: 1, reset: now.Add(lim.Window)}
		l.sweepLocked(now)
		return true, nil
	}
	if w.count >= lim.Limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// sweepLocked drops expired windows opportunistically so the map stays
// bounded without a background goroutine.
func (l *Limiter) sweepLocked(now time.Time) {
	if len(l.windows) < 4096 {
		return
	}
	for k, w := range l.windows {
		if now.After(w.reset) {
			delete(l.windows, k)
		}
	}
}
