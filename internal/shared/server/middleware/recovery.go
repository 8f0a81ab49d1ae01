package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"issue-scout/internal/shared/metrics"
	"issue-scout/internal/shared/server/respond"
	"issue-scout/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 and counts it. Scans launched by the
// handler run on their own goroutines and recover separately.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			metrics.IncPanic("http")
			telemetry.Error("http.panic", map[string]any{
				"request_id": RequestIDFromContext(c),
				"user_id":    UserIDFromContext(c),
				"route":      c.FullPath(),
				"method":     c.Request.Method,
				"panic":      rec,
				"stack":      string(debug.Stack()),
			})
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
		}()
		c.Next()
	}
}
