package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/robalyx/reactor/internal/ratelimit"
	"github.com/robalyx/reactor/internal/rest/response"
	"go.uber.org/zap"
)

// RateLimit admits requests through the limiter for the given class, keyed
// by the caller fingerprint. Requires the Fingerprint middleware.
func RateLimit(limiter *ratelimit.Limiter, class ratelimit.Class, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("ratelimit_middleware")

	return func(c *gin.Context) {
		decision := limiter.Admit(c.Request.Context(), class, FingerprintFrom(c))

		c.Header("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))

		if !decision.Allowed {
			logger.Debug("Request throttled",
				zap.String("class", string(class)),
				zap.Int64("count", decision.Count),
				zap.Duration("retryAfter", decision.RetryAfter))
			response.RateLimited(c, decision.RetryAfter)

			return
		}

		c.Next()
	}
}
