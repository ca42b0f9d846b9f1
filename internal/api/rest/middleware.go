package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/authgate/auth-core/internal/metrics"
)

const correlationHeader = "X-Correlation-Id"
const correlationKey = "rest.correlation_id"

// correlationMiddleware reads the caller's correlation id or generates
// one, and echoes it on the response.
func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(correlationKey, id)
		c.Header(correlationHeader, id)
		c.Next()
	}
}

// correlationID returns the request's correlation id.
func correlationID(c *gin.Context) string {
	if id, ok := c.Get(correlationKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// loggingMiddleware emits one structured line per request.
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("correlation_id", correlationID(c)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// recoveryMiddleware converts panics into the uniform 500 envelope.
func recoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.String("correlation_id", correlationID(c)))
				writeError(c, http.StatusInternalServerError, "internal_error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// metricsMiddleware records per-route latency.
func metricsMiddleware(m *metrics.AuthMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(route, c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// writeError emits the uniform error envelope.
func writeError(c *gin.Context, status int, code string) {
	c.JSON(status, ErrorResponse{
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Error:         code,
		Path:          c.Request.URL.Path,
		CorrelationID: correlationID(c),
	})
}
