package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"issue-scout/internal/shared/server/respond"
)

const (
	userIDKey  = "userId"
	demoUserID = "demo"
)

// Identity reads the requester from X-User-Id. Session issuance lives in front of this
// service; outside dev a missing header is rejected, in dev it falls back to a demo user.
func Identity(env string) gin.HandlerFunc {
	allowDemo := env == "dev" || env == "local"
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		path := c.Request.URL.Path
		if path == "/api/v1/health" || path == "/metrics" {
			c.Next()
			return
		}

		userID := strings.TrimSpace(c.GetHeader("X-User-Id"))
		if userID == "" {
			if !allowDemo {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing identity", nil)
				return
			}
			userID = demoUserID
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserIDFromContext fetches the user ID set by the identity middleware.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
