package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kendall-kelly/repairdesk-api/logger"
)

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-ID"

// RequestLogger logs every HTTP request as one structured entry
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		c.Next()

		fields := map[string]interface{}{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if userID, err := GetUserID(c); err == nil {
			fields["user_id"] = userID
		}

		entry := logger.WithContext(fields)
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("HTTP request")
		case c.Writer.Status() >= 400:
			entry.Warn("HTTP request")
		default:
			entry.Info("HTTP request")
		}
	}
}
