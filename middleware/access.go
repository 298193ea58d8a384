package middleware

import (
	"PShare/logger"
	"PShare/service/metrics"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccessLog logs every request and feeds the HTTP metrics. The path label
// is the route template so ids do not blow up cardinality.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		cost := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(cost.Seconds())

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("cost", cost),
			zap.String("ip", c.ClientIP()),
			zap.String("rid", c.GetString(HeaderRequestID)),
		}
		if status >= 500 {
			logger.Warn("http", fields...)
			return
		}
		logger.Debug("http", fields...)
	}
}

const HeaderRequestID = "X-Request-Id"

// RequestID keeps a caller supplied request id or assigns one. It does not
// call c.Next, so it can sit inside a MiddlewareManager.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(HeaderRequestID, rid)
		c.Writer.Header().Set(HeaderRequestID, rid)
	}
}
