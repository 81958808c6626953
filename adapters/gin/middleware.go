// Package otpgin mirrors the net/http middleware for gin hosts that want to
// mount OTPBUY auth in front of their own routes.
package otpgin

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"

	core "github.com/otpbuy/otpbuy/core"
)

func bearerToken(authorization string) string {
	if authorization == "" {
		return ""
	}
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// AuthRequired validates the Bearer token (JWT), enforces iss/aud/exp, and
// stores user info in both Gin and request contexts.
func AuthRequired(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c.GetHeader("Authorization"))
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}
		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, svc.Keyfunc())
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}
		opts := svc.Options()
		if iss, _ := claims["iss"].(string); iss != opts.Issuer {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad_issuer"})
			return
		}
		if len(opts.ExpectedAudiences) > 0 && !audContainsAny(claims["aud"], opts.ExpectedAudiences) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad_audience"})
			return
		}
		if expUnix, ok := toUnix(claims["exp"]); ok {
			if time.Unix(expUnix, 0).Before(time.Now().Add(-time.Second)) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token_expired"})
				return
			}
		} else {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_exp"})
			return
		}

		cl := Claims{}
		cl.UserID, _ = claims["sub"].(string)
		cl.Email, _ = claims["email"].(string)
		cl.Role, _ = claims["role"].(string)
		cl.SessionID, _ = claims["sid"].(string)
		if cl.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		if svc.Postgres() != nil {
			u, err := svc.GetUserByID(c.Request.Context(), cl.UserID)
			if err != nil || u == nil || u.IsBanned() {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_disabled"})
				return
			}
		}

		c.Set("otpbuy.claims", cl)
		c.Request = c.Request.WithContext(SetClaims(c.Request.Context(), cl))
		c.Next()
	}
}

// AuthOptional passes through when no token is present; validates if present.
func AuthOptional(svc *core.Service) gin.HandlerFunc {
	required := AuthRequired(svc)
	return func(c *gin.Context) {
		if bearerToken(c.GetHeader("Authorization")) == "" {
			c.Next()
			return
		}
		required(c)
	}
}

// LevelRequired gates a route on the caller's admin level via the permission
// cache.
func LevelRequired(svc *core.Service, min int) gin.HandlerFunc {
	required := AuthRequired(svc)
	return func(c *gin.Context) {
		required(c)
		if c.IsAborted() {
			return
		}
		uid, _ := UserID(c)
		p := svc.Permissions(c.Request.Context(), uid)
		if !p.IsAdmin || p.Level < min {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// OwnerRequired gates a route on the owner flag rather than the numeric level.
func OwnerRequired(svc *core.Service) gin.HandlerFunc {
	required := AuthRequired(svc)
	return func(c *gin.Context) {
		required(c)
		if c.IsAborted() {
			return
		}
		uid, _ := UserID(c)
		if !svc.Permissions(c.Request.Context(), uid).CanManageAdmins {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
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
		for _, s := range v {
			if s == want {
				return true
			}
		}
	}
	return false
}

func audContainsAny(aud any, wantAny []string) bool {
	for _, want := range wantAny {
		if audContains(aud, want) {
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
	}
	return 0, false
}
