package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the gateway's shared admission secret, when one
// is configured.
const APIKeyHeader = "X-API-Key"

// RequireAPIKey admits a request only if it carries apiKey in
// X-API-Key, constant-time compared. When apiKey is empty the gateway
// is open (no admission control), the default for local/demo
// deployments.
func RequireAPIKey(apiKey string) gin.HandlerFunc {
	if apiKey == "" {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		provided := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid API key"})
			return
		}
		c.Next()
	}
}
