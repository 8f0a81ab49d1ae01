package signals

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"issue-scout/internal/shared/server/respond"
)

// DefaultListLimit is the number of signals returned when no limit is given.
const DefaultListLimit = 100

// Handler serves read-only signal listings.
type Handler struct {
	Repo Repo
}

// NewHandler constructs a Handler.
func NewHandler(repo Repo) *Handler {
	return &Handler{Repo: repo}
}

// RegisterRoutes attaches signal routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/repos/:id/signals", h.list)
}

func (h *Handler) list(c *gin.Context) {
	limit := DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			respond.Error(c, http.StatusBadRequest, "validation_error", "limit must be between 1 and 1000", nil)
			return
		}
		limit = n
	}
	items, err := h.Repo.ListByRepository(c.Request.Context(), c.Param("id"), ListFilter{Type: c.Query("type"), Limit: limit})
	if err != nil {
		if !respond.Canceled(c, err) {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list signals", nil)
		}
		return
	}
	respond.OK(c, items)
}
