package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agencyops/credcore/pkg/log"
)

// TransactionRateLimit throttles interactive credit adjustments per
// organization. A limiter outage fails open; blocking all adjustments is
// worse than briefly losing the throttle.
func (s *Server) TransactionRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.txnLimiter == nil {
			c.Next()
			return
		}

		result, err := s.txnLimiter.Allow(c.Request.Context(), c.Param("orgId"))
		if err != nil {
			log.L(c.Request.Context()).Warn("transaction rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			}
			AbortWithError(c, ErrTooManyRequests)
			return
		}

		c.Next()
	}
}
