package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fleetwatch/pkg/auth"
	"fleetwatch/pkg/models"
)

// JWTAuthMiddleware validates the bearer token and stores the caller's
// identity on the request context. It performs no authorization beyond
// "valid token present".
func JWTAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Authorization required"})
			c.Abort()
			return
		}

		claims, err := auth.ValidateJWT(token, secret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_email", claims.Email)
		c.Set("user_role", claims.Role)
		c.Next()
	}
}

// extractBearerToken pulls the token from the Authorization header, falling
// back to the "token" query parameter for WebSocket upgrades where browsers
// cannot set headers.
func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}
