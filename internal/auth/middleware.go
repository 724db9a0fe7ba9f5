package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const apiKeyHeader = "X-API-Key"

// Guard protects the API with a single shared key. An empty key disables it.
type Guard struct {
	key []byte
}

// NewGuard returns a guard for apiKey.
func NewGuard(apiKey string) *Guard {
	return &Guard{key: []byte(strings.TrimSpace(apiKey))}
}

// Enabled reports whether requests must carry the key.
func (g *Guard) Enabled() bool {
	return len(g.key) > 0
}

// Middleware rejects requests whose bearer token or X-API-Key header does not
// match the configured key.
func (g *Guard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.Enabled() {
			c.Next()
			return
		}
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), g.key) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return strings.TrimSpace(c.GetHeader(apiKeyHeader))
}
