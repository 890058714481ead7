package middleware

import (
	"bytes"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"depth-studio-backend/internal/logger"
	"depth-studio-backend/utils"
)

const maxLoggedBody = 1024

type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write keeps the first maxLoggedBody bytes so error responses can be logged
// without buffering image downloads.
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.body.Len(); room > 0 {
		w.body.Write(b[:min(room, len(b))])
	}
	return w.ResponseWriter.Write(b)
}

// RequestLoggingMiddleware logs each completed request with context fields
func RequestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		blw := &bodyLogWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = blw

		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"request_id", GetRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}

		if status >= 500 {
			logger.Error("request completed with server error", append(fields, "response", blw.body.String())...)
			return
		}
		if status >= 400 {
			logger.Warn("request completed with client error", append(fields, "response", blw.body.String())...)
			return
		}
		logger.Info("request completed", fields...)
	}
}

// RecoveryMiddleware converts panics to 500 responses and logs stack traces with context
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					"request_id", GetRequestID(c),
					"panic", r,
					"stack", string(debug.Stack()),
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"client_ip", c.ClientIP(),
				)
				utils.AbortWithError(c, http.StatusInternalServerError, "Internal server error")
			}
		}()
		c.Next()
	}
}
