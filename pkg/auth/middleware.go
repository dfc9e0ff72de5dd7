package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/embedops/flashgate/pkg/apiresponses"
)

const (
	// AuthHeaderKey is the request header carrying the bearer credential.
	AuthHeaderKey = "Authorization"
	// UserIDKey and EmailKey are the gin context keys the gate sets on success.
	UserIDKey = "user_id"
	EmailKey  = "email"
)

// Middleware returns the bearer-token gate. The header must be exactly
// "Bearer <token>"; any other shape, and any token that fails verification,
// yields the same uniform 401. On success the identity is attached to the
// gin context for the request's lifetime.
func (t *TokenIssuer) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		authHeader := c.GetHeader(AuthHeaderKey)
		// delete the header to avoid logging it by accident
		c.Request.Header.Del(AuthHeaderKey)

		fields := strings.Fields(authHeader)
		if len(fields) != 2 || fields[0] != "Bearer" {
			apiresponses.RespondUnauthorized(c)
			c.Abort()
			return
		}

		identity, err := t.Verify(fields[1])
		if err != nil {
			apiresponses.RespondUnauthorized(c)
			c.Abort()
			return
		}

		c.Set(UserIDKey, identity.UserID)
		c.Set(EmailKey, identity.Email)
		c.Next()
	}
}
