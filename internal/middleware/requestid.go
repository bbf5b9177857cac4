package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "request_id"

// RequestID tags every request with a correlation id, honoring one the
// caller already carries so ids survive gateway hops. The id is echoed in
// the response header and available downstream via RequestIDFrom.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// RequestIDFrom returns the id set by RequestID, empty if the middleware
// did not run.
func RequestIDFrom(c *gin.Context) string {
	if val, ok := c.Get(requestIDKey); ok {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return ""
}
