package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods        = "GET, POST, PATCH, DELETE, OPTIONS"
	corsAllowHeaders   = "Content-Type, X-User-Id, X-Request-Id"
	corsExposeHeaders  = "X-Request-Id, Retry-After"
	corsPreflightCache = "600"
)

// CORS lets the dashboard drive scans and review issues from another origin. A "*" entry
// allows any origin without credentials.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowedOrigins))
	wildcard := false
	for _, o := range allowedOrigins {
		o = strings.TrimSpace(o)
		switch o {
		case "":
		case "*":
			wildcard = true
		default:
			origins[o] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		h := c.Writer.Header()
		if origin != "" {
			if _, ok := origins[origin]; ok {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			} else if wildcard {
				h.Set("Access-Control-Allow-Origin", "*")
			}
			if h.Get("Access-Control-Allow-Origin") != "" {
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			}
		}

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		if h.Get("Access-Control-Allow-Origin") != "" {
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", corsPreflightCache)
		}
		c.AbortWithStatus(http.StatusNoContent)
	}
}
