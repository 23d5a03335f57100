package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AdminMiddleware guards maintenance endpoints with a single API key whose
// bcrypt hash comes from configuration.
type AdminMiddleware struct {
	keyHash []byte
}

// NewAdminMiddleware creates the middleware. An empty hash disables every
// admin route.
func NewAdminMiddleware(keyHash string) *AdminMiddleware {
	return &AdminMiddleware{keyHash: []byte(keyHash)}
}

// Enabled reports whether an admin key is configured.
func (am *AdminMiddleware) Enabled() bool {
	return len(am.keyHash) > 0
}

// RequireAdminAuth accepts the key from a Bearer token or the X-API-Key header.
func (am *AdminMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !am.Enabled() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "Admin disabled",
				"message": "No admin API key is configured",
			})
			return
		}

		if am.ValidateAdminKey(extractKey(c)) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": "Valid admin API key required for this endpoint",
		})
	}
}

// ValidateAdminKey compares key against the configured hash.
func (am *AdminMiddleware) ValidateAdminKey(key string) bool {
	if key == "" || !am.Enabled() {
		return false
	}
	return bcrypt.CompareHashAndPassword(am.keyHash, []byte(key)) == nil
}

func extractKey(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		tokenParts := strings.SplitN(authHeader, " ", 2)
		if len(tokenParts) == 2 && tokenParts[0] == "Bearer" {
			return tokenParts[1]
		}
	}
	return c.GetHeader("X-API-Key")
}
