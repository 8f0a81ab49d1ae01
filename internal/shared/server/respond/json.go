package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

func Created(c *gin.Context, payload any) {
	JSON(c, http.StatusCreated, payload)
}

// Accepted writes a 202 for scans that continue in the background.
func Accepted(c *gin.Context, payload any) {
	JSON(c, http.StatusAccepted, payload)
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
