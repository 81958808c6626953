package otphttp

import (
	"encoding/json"
	"net/http"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	core "github.com/otpbuy/otpbuy/core"
)

// Required validates the Bearer token (JWT), enforces iss/aud/exp, and stores
// claims in the request context. Banned users are rejected live, not just at
// token issue time.
func Required(svc *core.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r.Header.Get("Authorization"))
			if tokenStr == "" {
				unauthorized(w, "missing_token")
				return
			}
			claims := jwt.MapClaims{}
			parser := jwt.NewParser(jwt.WithoutClaimsValidation())
			token, err := parser.ParseWithClaims(tokenStr, claims, svc.Keyfunc())
			if err != nil || !token.Valid {
				unauthorized(w, "invalid_token")
				return
			}

			opts := svc.Options()
			if iss, _ := claims["iss"].(string); iss != opts.Issuer {
				unauthorized(w, "bad_issuer")
				return
			}
			if len(opts.ExpectedAudiences) > 0 && !audContainsAny(claims["aud"], opts.ExpectedAudiences) {
				unauthorized(w, "bad_audience")
				return
			}
			expUnix, ok := toUnix(claims["exp"])
			if !ok {
				unauthorized(w, "missing_exp")
				return
			}
			skew := time.Second
			now := time.Now()
			if time.Unix(expUnix, 0).Before(now.Add(-skew)) {
				unauthorized(w, "token_expired")
				return
			}
			if nbfUnix, ok := toUnix(claims["nbf"]); ok {
				if now.Add(skew).Before(time.Unix(nbfUnix, 0)) {
					unauthorized(w, "invalid_token")
					return
				}
			}
			if iatUnix, ok := toUnix(claims["iat"]); ok {
				if time.Unix(iatUnix, 0).After(now.Add(skew)) {
					unauthorized(w, "invalid_token")
					return
				}
			}

			cl := Claims{}
			cl.UserID, _ = claims["sub"].(string)
			cl.Email, _ = claims["email"].(string)
			cl.Role, _ = claims["role"].(string)
			cl.SessionID, _ = claims["sid"].(string)
			if cl.UserID == "" {
				unauthorized(w, "invalid_token")
				return
			}

			// Live ban gate when a database is attached.
			if svc.Postgres() != nil {
				u, err := svc.GetUserByID(r.Context(), cl.UserID)
				if err != nil || u == nil || u.IsBanned() {
					unauthorized(w, "user_disabled")
					return
				}
			}

			r = r.WithContext(setClaims(r.Context(), cl))
			next.ServeHTTP(w, r)
		})
	}
}

// Optional validates when Authorization is present; otherwise passes through.
func Optional(svc *core.Service) func(http.Handler) http.Handler {
	req := Required(svc)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bearerToken(r.Header.Get("Authorization")) == "" {
				next.ServeHTTP(w, r)
				return
			}
			req(next).ServeHTTP(w, r)
		})
	}
}

// RequireLevel gates a route on the caller's admin level via the permission
// cache. Run it behind Required.
func RequireLevel(svc *core.Service, min int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cl, err := getClaims(r.Context())
			if err != nil || cl.UserID == "" {
				forbidden(w, "forbidden")
				return
			}
			p := svc.Permissions(r.Context(), cl.UserID)
			if !p.IsAdmin || p.Level < min {
				forbidden(w, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwner gates a route on the owner flag rather than the numeric level.
func RequireOwner(svc *core.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cl, err := getClaims(r.Context())
			if err != nil || cl.UserID == "" {
				forbidden(w, "forbidden")
				return
			}
			if !svc.Permissions(r.Context(), cl.UserID).CanManageAdmins {
				forbidden(w, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func audContains(aud any, want string) bool {
	switch v := aud.(type) {
	case string:
		return v == want
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && s == want {
				return true
			}
		}
	case []string:
		for _, e := range v {
			if e == want {
				return true
			}
		}
	}
	return false
}

func audContainsAny(aud any, want []string) bool {
	for _, w := range want {
		if audContains(aud, w) {
			return true
		}
	}
	return false
}

func toUnix(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case json.Number:
		i, err := t.Int64()
		return i, err == nil
	}
	return 0, false
}
