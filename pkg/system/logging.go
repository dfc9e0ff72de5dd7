package system

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReqLoggerKey is the context key used to store request-scoped logger in gin context.
const ReqLoggerKey = "reqLogger"

// GetReqLogger returns the request-scoped sugared logger from gin.Context if present,
// otherwise returns the provided fallback.
func GetReqLogger(c *gin.Context, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return fallback
	}
	if v, ok := c.Get(ReqLoggerKey); ok {
		if l, ok2 := v.(*zap.SugaredLogger); ok2 {
			return l
		}
	}
	return fallback
}

// EnrichReqLoggerWithAuth annotates the request-scoped logger with the
// identity fields the auth gate placed in the gin context. Returns a new
// sugared logger with the additional fields attached.
func EnrichReqLoggerWithAuth(c *gin.Context, reqLogger *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil || reqLogger == nil {
		return reqLogger
	}
	if v, ok := c.Get("email"); ok {
		if email, ok2 := v.(string); ok2 && email != "" {
			reqLogger = reqLogger.With("email", email)
		}
	}
	if v, ok := c.Get("user_id"); ok {
		if id, ok2 := v.(string); ok2 && id != "" {
			reqLogger = reqLogger.With("userID", id)
		}
	}
	return reqLogger
}
