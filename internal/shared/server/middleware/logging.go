package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"issue-scout/internal/shared/telemetry"
)

// Context keys handlers may set so the request log line can carry them.
const (
	RepositoryIDKey = "repositoryId"
	ScanJobIDKey    = "scanJobId"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		telemetry.Info("request.complete", map[string]any{
			"request_id":    RequestIDFromContext(c),
			"method":        c.Request.Method,
			"path":          c.Request.URL.Path,
			"route":         c.FullPath(),
			"status":        c.Writer.Status(),
			"duration_ms":   float64(latency.Microseconds()) / 1000.0,
			"user_id":       UserIDFromContext(c),
			"repository_id": c.GetString(RepositoryIDKey),
			"scan_job_id":   c.GetString(ScanJobIDKey),
			"client_ip":     c.ClientIP(),
			"user_agent":    c.Request.UserAgent(),
		})
	}
}
