package callwebhook

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"partsiq_backend/platform/config"

	"github.com/gin-gonic/gin"
)

// SecretAuthMiddleware validates the shared bearer secret the provider sends
// with every turn callback.
func SecretAuthMiddleware(cfg config.WebhookConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := cfg.GetWebhookSecret()
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "webhook secret not configured"})
			return
		}

		presented := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if presented == "" {
			presented = c.GetHeader("X-Call-Secret")
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}

		c.Next()
	}
}
