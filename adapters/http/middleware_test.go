package otphttp

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	core "github.com/otpbuy/otpbuy/core"
)

func newTestCoreService(t *testing.T) *core.Service {
	t.Helper()
	return core.NewService(core.Options{
		Issuer:            "https://otpbuy.test",
		IssuedAudiences:   []string{"otpbuy"},
		ExpectedAudiences: []string{"otpbuy"},
	}, core.Keyset{ActiveKID: "primary", Keys: map[string][]byte{"primary": []byte("test-secret")}})
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = "primary"
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss": "https://otpbuy.test",
		"sub": "u1",
		"aud": "otpbuy",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
		"sid": "sid-1",
	}
}

func runProtected(svc *core.Service, token string) *httptest.ResponseRecorder {
	protected := Required(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	protected.ServeHTTP(w, r)
	return w
}

func TestRequired_MissingToken(t *testing.T) {
	w := runProtected(newTestCoreService(t), "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"missing_token"}`, w.Body.String())
}

func TestRequired_AcceptsValidToken(t *testing.T) {
	w := runProtected(newTestCoreService(t), signToken(t, baseClaims()))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRequired_RejectsBadSignature(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims())
	tok.Header["kid"] = "primary"
	s, err := tok.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	w := runProtected(newTestCoreService(t), s)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"invalid_token"}`, w.Body.String())
}

func TestRequired_RejectsBadIssuer(t *testing.T) {
	claims := baseClaims()
	claims["iss"] = "https://evil.test"
	w := runProtected(newTestCoreService(t), signToken(t, claims))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"bad_issuer"}`, w.Body.String())
}

func TestRequired_RejectsBadAudience(t *testing.T) {
	claims := baseClaims()
	claims["aud"] = "someone-else"
	w := runProtected(newTestCoreService(t), signToken(t, claims))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"bad_audience"}`, w.Body.String())
}

func TestRequired_RequiresExp(t *testing.T) {
	claims := baseClaims()
	delete(claims, "exp")
	w := runProtected(newTestCoreService(t), signToken(t, claims))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"missing_exp"}`, w.Body.String())
}

func TestRequired_RejectsExpired(t *testing.T) {
	claims := baseClaims()
	claims["iat"] = time.Now().Add(-2 * time.Hour).Unix()
	claims["exp"] = time.Now().Add(-1 * time.Hour).Unix()
	w := runProtected(newTestCoreService(t), signToken(t, claims))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"token_expired"}`, w.Body.String())
}

func TestRequired_RejectsNbfInFuture(t *testing.T) {
	claims := baseClaims()
	claims["nbf"] = time.Now().Add(30 * time.Minute).Unix()
	w := runProtected(newTestCoreService(t), signToken(t, claims))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"invalid_token"}`, w.Body.String())
}

func TestRequired_RejectsIatInFuture(t *testing.T) {
	claims := baseClaims()
	claims["iat"] = time.Now().Add(30 * time.Minute).Unix()
	w := runProtected(newTestCoreService(t), signToken(t, claims))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"invalid_token"}`, w.Body.String())
}

func TestRequired_RejectsMissingSub(t *testing.T) {
	claims := baseClaims()
	delete(claims, "sub")
	w := runProtected(newTestCoreService(t), signToken(t, claims))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"invalid_token"}`, w.Body.String())
}

func TestOptional_PassesThroughWithoutToken(t *testing.T) {
	svc := newTestCoreService(t)
	var saw Claims
	h := Optional(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		saw, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, saw.UserID)

	// With a token, claims flow through.
	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, baseClaims()))
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "u1", saw.UserID)
	require.Equal(t, "sid-1", saw.SessionID)
}

func TestRequireLevel_ForbidsWithoutClaims(t *testing.T) {
	svc := newTestCoreService(t)
	h := RequireLevel(svc, core.LevelManager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.JSONEq(t, `{"error":"forbidden"}`, w.Body.String())
}

func TestRequireLevel_ConsultsPermissionCache(t *testing.T) {
	svc := newTestCoreService(t)
	h := Required(svc)(RequireLevel(svc, core.LevelManager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	run := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, baseClaims()))
		h.ServeHTTP(w, r)
		return w
	}

	// Without Postgres the role fetch fails and NoAccess is published.
	w := run()
	require.Equal(t, http.StatusForbidden, w.Code)

	// Seed the cache with a manager snapshot: the gate opens.
	svc.PermissionCacheRef().Put("u1", core.DerivePermissions(core.RoleRecord{Role: "manager", Level: core.LevelManager}))
	w = run()
	require.Equal(t, http.StatusOK, w.Code)

	// Handler level is below the manager gate.
	svc.PermissionCacheRef().InvalidateAll()
	svc.PermissionCacheRef().Put("u1", core.DerivePermissions(core.RoleRecord{Role: "support", Level: core.LevelHandler}))
	w = run()
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireOwner_NeedsOwnerFlagNotLevel(t *testing.T) {
	svc := newTestCoreService(t)
	h := Required(svc)(RequireOwner(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	run := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, baseClaims()))
		h.ServeHTTP(w, r)
		return w
	}

	// Even the top level is refused without the owner flag.
	svc.PermissionCacheRef().Put("u1", core.DerivePermissions(core.RoleRecord{Role: "owner", Level: core.LevelOwner}))
	w := run()
	require.Equal(t, http.StatusForbidden, w.Code)

	svc.PermissionCacheRef().InvalidateAll()
	svc.PermissionCacheRef().Put("u1", core.DerivePermissions(core.RoleRecord{Role: "owner", Level: core.LevelOwner, IsOwner: true}))
	w = run()
	require.Equal(t, http.StatusOK, w.Code)
}
