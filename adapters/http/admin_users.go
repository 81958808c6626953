package otphttp

import (
	"errors"
	"net/http"

	core "github.com/otpbuy/otpbuy/core"
)

func (s *Service) handleAdminUsersListGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminRead) {
		tooMany(w)
		return
	}
	limit, offset := pageParams(r, 50)
	rows, err := s.svc.ListUsers(r.Context(), r.URL.Query().Get("q"), limit, offset)
	if err != nil {
		serverErr(w, "users_read_failed")
		return
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, map[string]any{
			"id":         row.ID,
			"uid":        row.UID,
			"email":      row.Email,
			"name":       row.Name,
			"banned":     row.IsBanned(),
			"role":       row.Role,
			"level":      row.Level,
			"balance":    row.Balance,
			"created_at": row.CreatedAt,
			"last_login": row.LastLogin,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (s *Service) handleAdminUserTransactionsGET(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminRead) {
		tooMany(w)
		return
	}
	limit, offset := pageParams(r, 50)
	txns, err := s.svc.ListTransactions(r.Context(), r.PathValue("user_id"), limit, offset)
	if err != nil {
		serverErr(w, "transactions_read_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

func (s *Service) handleAdminUserBanPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	if err := s.svc.BanUser(r.Context(), r.PathValue("user_id")); err != nil {
		serverErr(w, "ban_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Service) handleAdminUserUnbanPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	if err := s.svc.UnbanUser(r.Context(), r.PathValue("user_id")); err != nil {
		serverErr(w, "unban_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Service) handleAdminUserNamePATCH(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		badRequest(w, "invalid_request")
		return
	}
	if err := s.svc.SetUserName(r.Context(), r.PathValue("user_id"), req.Name); err != nil {
		serverErr(w, "update_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Service) handleAdminUserResetPasswordPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	var req struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil || req.NewPassword == "" {
		badRequest(w, "invalid_request")
		return
	}
	if err := s.svc.AdminResetPassword(r.Context(), r.PathValue("user_id"), req.NewPassword); err != nil {
		badRequest(w, "password_rejected")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Service) handleAdminUserBalancePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil {
		unauthorized(w, "invalid_token")
		return
	}
	var req struct {
		Delta float64 `json:"delta"`
		Note  string  `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Delta == 0 {
		badRequest(w, "invalid_request")
		return
	}
	bal, err := s.svc.AdminUpdateUserBalance(r.Context(), cl.UserID, r.PathValue("user_id"), req.Delta, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrForbidden):
			forbidden(w, "forbidden")
		case errors.Is(err, core.ErrInsufficientBalance):
			badRequest(w, "insufficient_balance")
		default:
			serverErr(w, "balance_update_failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"new_balance": bal})
}

func (s *Service) handleAdminRolesGrantPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	var req struct {
		UserID  string `json:"user_id"`
		Role    string `json:"role"`
		Level   int    `json:"level"`
		IsOwner bool   `json:"is_owner"`
	}
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" || req.Role == "" {
		badRequest(w, "invalid_request")
		return
	}
	if err := s.svc.GrantRole(r.Context(), req.UserID, req.Role, req.Level, req.IsOwner); err != nil {
		serverErr(w, "grant_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Service) handleAdminRolesRevokePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminWrite) {
		tooMany(w)
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		badRequest(w, "invalid_request")
		return
	}
	if err := s.svc.RevokeRole(r.Context(), req.UserID); err != nil {
		serverErr(w, "revoke_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleAdminImpersonatePOST switches the caller's session to act as the
// target user, parking the admin identity for the return trip.
func (s *Service) handleAdminImpersonatePOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminImpersonate) {
		tooMany(w)
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil || cl.SessionID == "" {
		unauthorized(w, "invalid_token")
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		badRequest(w, "invalid_request")
		return
	}
	if req.UserID == cl.UserID {
		badRequest(w, "cannot_impersonate_self")
		return
	}
	target, err := s.svc.GetUserByID(r.Context(), req.UserID)
	if err != nil {
		serverErr(w, "user_read_failed")
		return
	}
	if target == nil {
		notFound(w, "user_not_found")
		return
	}
	admin, err := s.svc.CurrentUser(r.Context(), cl.SessionID)
	if err != nil {
		serverErr(w, "session_read_failed")
		return
	}
	if admin == nil {
		unauthorized(w, "signed_out")
		return
	}
	snapshot := core.AdminSnapshot{
		AdminID:    admin.ID,
		AdminUID:   admin.UID,
		AdminEmail: admin.Email,
		AdminName:  admin.Name,
	}
	if err := s.svc.ImpersonateUser(r.Context(), cl.SessionID, sessionUserFrom(target), snapshot); err != nil {
		serverErr(w, "impersonation_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleAdminImpersonateReturnPOST restores the parked admin. 409 when the
// session is not impersonating.
func (s *Service) handleAdminImpersonateReturnPOST(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, RLAdminImpersonate) {
		tooMany(w)
		return
	}
	cl, err := getClaims(r.Context())
	if err != nil || cl.SessionID == "" {
		unauthorized(w, "invalid_token")
		return
	}
	ok, err := s.svc.ReturnToAdmin(r.Context(), cl.SessionID)
	if err != nil {
		serverErr(w, "return_failed")
		return
	}
	if !ok {
		conflict(w, "not_impersonating")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
