package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"askthedocs/internal/pkg/jwtutil"
	"askthedocs/internal/transport/http/response"
)

const ContextSessionIDKey = "session_id"

// SessionAuth resolves the bearer token to the session id it names.
func SessionAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, 401, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Error(c, 401, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextSessionIDKey, claims.SessionID)
		c.Next()
	}
}

// SessionIDFromContext returns the session id set by SessionAuth.
func SessionIDFromContext(c *gin.Context) (string, bool) {
	raw, ok := c.Get(ContextSessionIDKey)
	if !ok {
		return "", false
	}
	id, ok := raw.(string)
	return id, ok && id != ""
}
