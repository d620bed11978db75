package middleware

import (
	"crypto/subtle"

	"pulsewire/pkg/constraints"

	"github.com/gin-gonic/gin"
)

// AgentKeyMiddleware gates the local ingest API behind a static key so that
// only processes the operator provisioned can feed the pipeline. An empty
// configured key disables the check.
func AgentKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		presented := c.GetHeader(constraints.HeaderAgentKey)
		if presented == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": "missing API key"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(403, gin.H{"error": "forbidden"})
			return
		}

		c.Next()
	}
}
