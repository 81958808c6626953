package otphttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	core "github.com/otpbuy/otpbuy/core"
)

func TestSessionRoundTrip(t *testing.T) {
	s := newTestService(t)
	h := s.APIHandler()
	ctx := context.Background()

	tok, _, err := s.Core().IssueAccessToken(ctx, "u1", "a@otpbuy.test", map[string]any{"sid": "sid-1"})
	require.NoError(t, err)
	require.NoError(t, s.Core().SignIn(ctx, "sid-1", core.SessionUser{ID: "u1", Email: "a@otpbuy.test", Name: "Alice"}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		User           core.SessionUser `json:"user"`
		IsImpersonated bool             `json:"is_impersonated"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, "u1", got.User.ID)
	require.Equal(t, "Alice", got.User.Name)
	require.False(t, got.IsImpersonated)
}

// Logging out while impersonating restores the parked admin; only the second
// logout clears the session.
func TestLogoutDualExit(t *testing.T) {
	s := newTestService(t)
	h := s.APIHandler()
	ctx := context.Background()

	tok, _, err := s.Core().IssueAccessToken(ctx, "admin-1", "admin@otpbuy.test", map[string]any{"sid": "sid-1"})
	require.NoError(t, err)
	require.NoError(t, s.Core().SignIn(ctx, "sid-1", core.SessionUser{ID: "admin-1", Email: "admin@otpbuy.test"}))
	require.NoError(t, s.Core().ImpersonateUser(ctx, "sid-1",
		core.SessionUser{ID: "u2", Email: "target@otpbuy.test"},
		core.AdminSnapshot{AdminID: "admin-1", AdminEmail: "admin@otpbuy.test"}))

	logout := func() map[string]any {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodDelete, "/api/auth/logout", nil)
		r.Header.Set("Authorization", "Bearer "+tok)
		h.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return body
	}

	require.Equal(t, true, logout()["returned_to_admin"])
	u, err := s.Core().CurrentUser(ctx, "sid-1")
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "admin-1", u.ID)

	require.Equal(t, false, logout()["returned_to_admin"])
	u, err = s.Core().CurrentUser(ctx, "sid-1")
	require.NoError(t, err)
	require.Nil(t, u)
}

func TestImpersonateReturnWithoutRecord(t *testing.T) {
	s := newTestService(t)
	h := s.APIHandler()

	tok, _, err := s.Core().IssueAccessToken(context.Background(), "u1", "e@otpbuy.test", map[string]any{"sid": "sid-1"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/admin/impersonate/return", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusConflict, w.Code)
	require.JSONEq(t, `{"error":"not_impersonating"}`, w.Body.String())
}

func TestAdminRoutesForbiddenForPlainUser(t *testing.T) {
	s := newTestService(t)
	h := s.APIHandler()

	tok, _, err := s.Core().IssueAccessToken(context.Background(), "u1", "e@otpbuy.test", map[string]any{"sid": "sid-1"})
	require.NoError(t, err)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/admin/users"},
		{http.MethodPost, "/api/admin/users/u2/ban"},
		{http.MethodPost, "/api/admin/roles/grant"},
		{http.MethodPost, "/api/admin/impersonate"},
	} {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(route.method, route.path, nil)
		r.Header.Set("Authorization", "Bearer "+tok)
		h.ServeHTTP(w, r)
		require.Equal(t, http.StatusForbidden, w.Code, "%s %s", route.method, route.path)
		require.JSONEq(t, `{"error":"forbidden"}`, w.Body.String())
	}
}

func TestAdminRouteLevels(t *testing.T) {
	s := newTestService(t)
	h := s.APIHandler()

	tok, _, err := s.Core().IssueAccessToken(context.Background(), "u1", "e@otpbuy.test", map[string]any{"sid": "sid-1"})
	require.NoError(t, err)

	do := func(method, path string) int {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(method, path, nil)
		r.Header.Set("Authorization", "Bearer "+tok)
		h.ServeHTTP(w, r)
		return w.Code
	}

	// A handler passes the any-admin read gate but not the manager write gate.
	s.Core().PermissionCacheRef().Put("u1", core.DerivePermissions(core.RoleRecord{Role: "support", Level: core.LevelHandler}))
	require.NotEqual(t, http.StatusForbidden, do(http.MethodGet, "/api/admin/servers"))
	require.Equal(t, http.StatusForbidden, do(http.MethodPost, "/api/admin/servers"))
	require.Equal(t, http.StatusForbidden, do(http.MethodPost, "/api/admin/roles/grant"))

	// A manager passes writes but not owner-only role edits.
	s.Core().PermissionCacheRef().InvalidateAll()
	s.Core().PermissionCacheRef().Put("u1", core.DerivePermissions(core.RoleRecord{Role: "manager", Level: core.LevelManager}))
	require.NotEqual(t, http.StatusForbidden, do(http.MethodPost, "/api/admin/servers"))
	require.Equal(t, http.StatusForbidden, do(http.MethodPost, "/api/admin/roles/grant"))
}
