package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"gopherchat/internal/pkg/jwtutil"
	"gopherchat/internal/transport/http/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
	ContextGuestKey    = "guest_mode"

	// GuestHeader marks a request as an anonymous guest session; guest
	// turns bypass authentication and persistence.
	GuestHeader = "X-Guest-Mode"
)

func AuthJWT(secret string) gin.HandlerFunc {
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

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}

// AuthJWTOrGuest admits requests carrying the guest header without a token;
// everything else goes through the normal JWT check.
func AuthJWTOrGuest(secret string) gin.HandlerFunc {
	jwtCheck := AuthJWT(secret)
	return func(c *gin.Context) {
		if strings.EqualFold(strings.TrimSpace(c.GetHeader(GuestHeader)), "true") {
			c.Set(ContextGuestKey, true)
			c.Next()
			return
		}
		jwtCheck(c)
	}
}

func IsGuest(c *gin.Context) bool {
	guest, exists := c.Get(ContextGuestKey)
	if !exists {
		return false
	}
	flag, ok := guest.(bool)
	return ok && flag
}
