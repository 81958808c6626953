package otphttp

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	core "github.com/otpbuy/otpbuy/core"
)

func sessionUserFrom(u *core.User) core.SessionUser {
	su := core.SessionUser{
		ID:        u.ID,
		UID:       u.UID,
		IsBanned:  u.IsBanned(),
		CreatedAt: time.Now(),
	}
	if u.Email != nil {
		su.Email = *u.Email
	}
	if u.Name != nil {
		su.Name = *u.Name
	}
	if u.AvatarURL != nil {
		su.AvatarURL = *u.AvatarURL
	}
	return su
}

func (s *Service) handleRegisterPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAuthRegister) {
		tooMany(w)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || req.Password == "" {
		badRequest(w, "invalid_request")
		return
	}
	u, err := s.svc.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		badRequest(w, "registration_failed")
		return
	}

	sid := uuid.NewString()
	email := ""
	if u.Email != nil {
		email = *u.Email
	}
	token, exp, err := s.svc.IssueAccessToken(r.Context(), u.ID, email, map[string]any{"sid": sid})
	if err != nil {
		serverErr(w, "token_issue_failed")
		return
	}
	if err := s.svc.SignIn(r.Context(), sid, sessionUserFrom(u)); err != nil {
		serverErr(w, "session_creation_failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user_id":      u.ID,
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int64(time.Until(exp).Seconds()),
	})
}

func (s *Service) handleLoginPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAuthLogin) {
		tooMany(w)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || req.Password == "" {
		badRequest(w, "invalid_request")
		return
	}

	sid := uuid.NewString()
	u, token, exp, err := s.svc.PasswordLogin(r.Context(), req.Email, req.Password, map[string]any{"sid": sid})
	if err != nil {
		unauthorized(w, "invalid_credentials")
		return
	}
	if err := s.svc.SignIn(r.Context(), sid, sessionUserFrom(u)); err != nil {
		serverErr(w, "session_creation_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":      u.ID,
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int64(time.Until(exp).Seconds()),
	})
}

// handleSessionGET returns the persisted session user plus derived
// permissions and the impersonation flag, so clients can render the admin
// banner without extra round trips.
func (s *Service) handleSessionGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAuthSession) {
		tooMany(w)
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil || cl.SessionID == "" {
		unauthorized(w, "invalid_token")
		return
	}
	su, err := s.svc.CurrentUser(r.Context(), cl.SessionID)
	if err != nil {
		serverErr(w, "session_read_failed")
		return
	}
	if su == nil {
		unauthorized(w, "signed_out")
		return
	}
	perms := s.svc.Permissions(r.Context(), su.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":            su,
		"permissions":     perms,
		"is_impersonated": s.svc.IsImpersonating(r.Context(), cl.SessionID),
	})
}

// handleLogoutDELETE is the dual exit: while impersonating it restores the
// parked admin instead of signing out.
func (s *Service) handleLogoutDELETE(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAuthLogout) {
		tooMany(w)
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil || cl.SessionID == "" {
		unauthorized(w, "invalid_token")
		return
	}
	returned, err := s.svc.SignOutOrReturnToAdmin(r.Context(), cl.SessionID)
	if err != nil {
		serverErr(w, "logout_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"returned_to_admin": returned})
}
