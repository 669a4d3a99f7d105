package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyConfig configures API key authentication. Each key maps to the
// organization it acts for; membership management itself is external.
type APIKeyConfig struct {
	// ValidKeys maps API keys to organization ids.
	ValidKeys map[string]string
	// HeaderName is the API key header (default: X-API-Key).
	HeaderName string
	// Optional lets requests without a key through, unauthenticated.
	Optional bool
}

var DefaultAPIKeyConfig = APIKeyConfig{
	HeaderName: "X-API-Key",
	Optional:   false,
}

type APIKey struct {
	config APIKeyConfig
}

func NewAPIKey(config APIKeyConfig) *APIKey {
	if config.HeaderName == "" {
		config.HeaderName = DefaultAPIKeyConfig.HeaderName
	}
	return &APIKey{config: config}
}

// Middleware authenticates the request and stores the caller's organization
// id in the gin context.
func (ak *APIKey) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(ak.config.HeaderName)

		// Query parameter fallback
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		// Authorization: Bearer fallback
		if apiKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				apiKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if apiKey == "" {
			if ak.config.Optional {
				c.Set("api_key_validated", false)
				c.Next()
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_api_key",
				"message": "API key required via X-API-Key header, api_key query parameter, or Authorization: Bearer",
			})
			c.Abort()
			return
		}

		// Constant-time comparison against every configured key
		valid := false
		var orgID string
		for validKey, org := range ak.config.ValidKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
				valid = true
				orgID = org
				break
			}
		}

		if !valid {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "Invalid API key",
			})
			c.Abort()
			return
		}

		c.Set("api_key_validated", true)
		c.Set("org_id", orgID)

		c.Next()
	}
}

// RequireAPIKey builds a middleware that rejects requests without a valid
// key.
func RequireAPIKey(validKeys map[string]string) gin.HandlerFunc {
	ak := NewAPIKey(APIKeyConfig{
		ValidKeys:  validKeys,
		HeaderName: "X-API-Key",
		Optional:   false,
	})
	return ak.Middleware()
}

// OrgFromContext returns the organization id the request's API key is bound
// to.
func OrgFromContext(c *gin.Context) (string, bool) {
	orgID, exists := c.Get("org_id")
	if !exists {
		return "", false
	}
	return orgID.(string), true
}
