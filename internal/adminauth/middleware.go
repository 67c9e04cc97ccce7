package adminauth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireBearerToken builds gin middleware that rejects any request
// without a valid admin bearer token, mirroring the teacher's
// AuthMiddleware (internal/api/middleware/auth.go) shape.
func RequireBearerToken(manager *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := manager.VerifyToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set("adminClaims", claims)
		c.Next()
	}
}
