package core

import (
	"context"
	"errors"
	stdlog "log"
	"time"
)

// Persisted session keys. The parked admin snapshot lives under its own key,
// separate from the active user, so it survives impersonation and can be
// restored later.
const (
	keySessionUser   = "session:user:"
	keyImpersonation = "session:impersonation:"
)

// SessionUser is the persisted current-user record for one session.
type SessionUser struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	IsBanned  bool      `json:"is_banned"`
	CreatedAt time.Time `json:"created_at"`
}

// AdminSnapshot is the admin identity parked while impersonating another user.
type AdminSnapshot struct {
	AdminID    string `json:"adminId"`
	AdminUID   string `json:"adminUid"`
	AdminEmail string `json:"adminEmail"`
	AdminName  string `json:"adminName"`
}

// CurrentUser returns the persisted user for a session, or nil when signed
// out. Malformed stored JSON is treated as data loss: the corrupt key is
// removed and the session reads as signed out. Store transport errors are
// returned to the caller untouched.
func (s *Service) CurrentUser(ctx context.Context, sid string) (*SessionUser, error) {
	var u SessionUser
	ok, err := s.ephemGetJSON(ctx, keySessionUser+sid, &u)
	switch {
	case errors.Is(err, errEphemeralDecode):
		stdlog.Printf("[otpbuy/session] discarding corrupt session sid=%s: %v", sid, err)
		_ = s.ephemDel(ctx, keySessionUser+sid)
		return nil, nil
	case err != nil:
		return nil, err
	case !ok:
		return nil, nil
	}
	return &u, nil
}

func (s *Service) parkedAdmin(ctx context.Context, sid string) (*AdminSnapshot, error) {
	var a AdminSnapshot
	ok, err := s.ephemGetJSON(ctx, keyImpersonation+sid, &a)
	switch {
	case errors.Is(err, errEphemeralDecode):
		stdlog.Printf("[otpbuy/session] discarding corrupt impersonation record sid=%s: %v", sid, err)
		_ = s.ephemDel(ctx, keyImpersonation+sid)
		return nil, nil
	case err != nil:
		return nil, err
	case !ok:
		return nil, nil
	}
	return &a, nil
}

// SignIn persists the session user and drops all cached permission snapshots
// so a previous identity on this process cannot bleed through.
func (s *Service) SignIn(ctx context.Context, sid string, u SessionUser) error {
	s.perms.InvalidateAll()
	return s.ephemSetJSON(ctx, keySessionUser+sid, u, s.opts.SessionTTL)
}

// UpdateSessionUser merge-patches the persisted user via mutate. No-op when
// signed out.
func (s *Service) UpdateSessionUser(ctx context.Context, sid string, mutate func(*SessionUser)) error {
	u, err := s.CurrentUser(ctx, sid)
	if err != nil || u == nil {
		return err
	}
	mutate(u)
	return s.ephemSetJSON(ctx, keySessionUser+sid, *u, s.opts.SessionTTL)
}

// ImpersonateUser switches the session to act as target, parking the admin
// identity for later restoration. Permission caches are cleared first so
// stale admin permissions cannot bleed into the impersonated view. The swap
// is pure KV state; no network round trip.
func (s *Service) ImpersonateUser(ctx context.Context, sid string, target SessionUser, admin AdminSnapshot) error {
	s.perms.InvalidateAll()
	if err := s.ephemSetJSON(ctx, keyImpersonation+sid, admin, s.opts.SessionTTL); err != nil {
		return err
	}
	return s.ephemSetJSON(ctx, keySessionUser+sid, target, s.opts.SessionTTL)
}

// IsImpersonating reports whether an admin identity is parked for this session.
func (s *Service) IsImpersonating(ctx context.Context, sid string) bool {
	a, err := s.parkedAdmin(ctx, sid)
	return err == nil && a != nil
}

// ReturnToAdmin restores the parked admin identity. Returns false (no-op)
// when nothing is parked. The restored record carries a fresh CreatedAt; the
// admin's original timestamp is not preserved across the round trip.
func (s *Service) ReturnToAdmin(ctx context.Context, sid string) (bool, error) {
	a, err := s.parkedAdmin(ctx, sid)
	if err != nil {
		return false, err
	}
	if a == nil {
		return false, nil
	}
	s.perms.InvalidateAll()
	restored := SessionUser{
		ID:        a.AdminID,
		UID:       a.AdminUID,
		Email:     a.AdminEmail,
		Name:      a.AdminName,
		CreatedAt: time.Now(),
	}
	if err := s.ephemSetJSON(ctx, keySessionUser+sid, restored, s.opts.SessionTTL); err != nil {
		return false, err
	}
	if err := s.ephemDel(ctx, keyImpersonation+sid); err != nil {
		return false, err
	}
	return true, nil
}

// SignOutOrReturnToAdmin is the session's dual exit transition. While
// impersonating, "sign out" means return to the parked admin identity, not a
// full logout; the caller should redirect to the admin area when
// returnedToAdmin is true. Only when no admin is parked does it clear the
// active user. Caches are invalidated in both paths, before any state moves.
func (s *Service) SignOutOrReturnToAdmin(ctx context.Context, sid string) (returnedToAdmin bool, err error) {
	s.perms.InvalidateAll()
	ok, err := s.ReturnToAdmin(ctx, sid)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	if err := s.ephemDel(ctx, keySessionUser+sid); err != nil {
		return false, err
	}
	return false, nil
}
