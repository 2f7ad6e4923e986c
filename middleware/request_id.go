package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"
)

// RequestID übernimmt X-Request-ID vom Client oder erzeugt eine neue UUID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID liefert die Request-ID aus dem Gin-Kontext.
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Get(RequestIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// Logger liefert einen Logger mit der Request-ID des Requests.
func Logger(c *gin.Context, log *zap.Logger) *zap.Logger {
	if id := GetRequestID(c); id != "" {
		return log.With(zap.String(RequestIDKey, id))
	}
	return log
}
