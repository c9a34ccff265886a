package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const CtxClaimsKey = "auth_claims"

// SessionCheck reports whether a session named by a valid token is still
// live. Tokens for ended sessions are rejected.
type SessionCheck func(ctx context.Context, sessionID string) bool

// AuthMiddleware accepts "Authorization: Bearer <token>", or a token query
// parameter for clients that cannot set headers (browser websockets).
func AuthMiddleware(tokens TokenService, check SessionCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c.GetHeader("Authorization"))
		if raw == "" {
			raw = c.Query("token")
		}
		if raw == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			c.Abort()
			return
		}

		claims, err := tokens.Parse(raw)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		if check != nil && !check(c.Request.Context(), claims.SessionID) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session ended"})
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Next()
	}
}

func bearer(h string) string {
	if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[len("Bearer "):])
}

func MustGetClaims(c *gin.Context) *Claims {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}
