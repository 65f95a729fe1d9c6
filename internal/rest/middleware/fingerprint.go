package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/robalyx/reactor/internal/reaction"
)

const fingerprintKey = "reactor.fingerprint"

// Fingerprint derives the caller fingerprint from the client IP and user
// agent and stores it on the context. The client IP is resolved by gin from
// the trusted proxy and remote IP header settings of the engine.
func Fingerprint(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(fingerprintKey, reaction.Fingerprint(secret, c.ClientIP(), c.Request.UserAgent()))
		c.Next()
	}
}

// FingerprintFrom returns the fingerprint stored by Fingerprint.
func FingerprintFrom(c *gin.Context) string {
	return c.GetString(fingerprintKey)
}
