package respond

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"issue-scout/internal/shared/telemetry"
)

// ErrorBody is the error object every handler returns.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error aborts with a standardized error body and logs it; 5xx at error level.
func Error(c *gin.Context, status int, code, message string, details any) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"route":      c.FullPath(),
		"method":     c.Request.Method,
		"request_id": telemetry.RequestID(c.Request.Context()),
	}
	if userID := c.GetString("userId"); userID != "" {
		fields["user_id"] = userID
	}
	if id := c.Param("id"); id != "" {
		fields["resource_id"] = id
	}
	if status >= http.StatusInternalServerError {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{Code: code, Message: message, Details: details},
	})
}

// Canceled writes a 408 when err comes from the request context and reports
// whether it did.
func Canceled(c *gin.Context, err error) bool {
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	return true
}
