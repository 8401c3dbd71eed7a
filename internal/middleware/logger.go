package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/broker/internal/logger"
)

// LoggerKey is the gin context key holding the request-scoped logger.
const LoggerKey = "logger"

// SlowRequestThreshold marks requests that should be logged as slow.
const SlowRequestThreshold = 5 * time.Second

// Logger creates a middleware that logs HTTP requests using structured logging.
// The request-scoped logger it stores carries the request ID into every service log line.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := log.WithRequestID(GetRequestID(c))
		c.Set(LoggerKey, requestLogger)

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		fields := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      statusCode,
			"duration_ms": duration.Milliseconds(),
			"ip":          c.ClientIP(),
		}
		// Route template groups /properties/:id/analysis regardless of the ID
		if route := c.FullPath(); route != "" {
			fields["route"] = route
		}
		if len(c.Request.URL.RawQuery) > 0 {
			fields["query"] = c.Request.URL.RawQuery
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		switch {
		case statusCode >= 500:
			requestLogger.Error("Request completed with server error", nil, fields)
		case statusCode >= 400:
			requestLogger.Warn("Request completed with client error", fields)
		case duration >= SlowRequestThreshold:
			requestLogger.Warn("Slow request", fields)
		default:
			requestLogger.Info("Request completed", fields)
		}
	}
}

// GetLogger retrieves the logger from the Gin context.
// Returns nil if not found.
func GetLogger(c *gin.Context) *logger.Logger {
	if log, exists := c.Get(LoggerKey); exists {
		if l, ok := log.(*logger.Logger); ok {
			return l
		}
	}
	return nil
}

// LoggerOr returns the request-scoped logger, or fallback when none is set.
func LoggerOr(c *gin.Context, fallback *logger.Logger) *logger.Logger {
	if l := GetLogger(c); l != nil {
		return l
	}
	return fallback
}
