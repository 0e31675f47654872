// Package logger provides request logging middleware.
package logger

import (
	"time"

	"github.com/agencyops/credcore/pkg/log/ctxlogger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const correlationHeader = "X-Correlation-ID"

// GinMiddleware attaches a correlation ID to each request and logs its outcome.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx := c.Request.Context()
		if id := c.GetHeader(correlationHeader); id != "" {
			ctx = ctxlogger.WithCorrelationID(ctx, id)
		}
		ctx, cid := ctxlogger.CorrelationID(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(correlationHeader, cid)

		c.Next()

		log := ctxlogger.FromContext(ctx)
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= 500:
			log.Error("request failed", fields...)
		case c.Writer.Status() >= 400:
			log.Warn("request rejected", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}
