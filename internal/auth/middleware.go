package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// KeyFromRequest reads a bearer token, falling back to x-api-key.
func KeyFromRequest(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader("Authorization")); strings.HasPrefix(v, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
	}
	return strings.TrimSpace(c.GetHeader("x-api-key"))
}

// Middleware admits requests carrying apiKey. An empty apiKey rejects
// everything.
func Middleware(apiKey string) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(apiKey))
	return func(c *gin.Context) {
		got := KeyFromRequest(c)
		if len(expected) > 0 && got != "" && subtle.ConstantTimeCompare([]byte(got), expected) == 1 {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"message": "unauthorized",
				"type":    "auth_error",
				"code":    "invalid_api_key",
			},
		})
	}
}
