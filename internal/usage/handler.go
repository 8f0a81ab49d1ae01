package usage

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"issue-scout/internal/shared/server/middleware"
	"issue-scout/internal/shared/server/respond"
)

// Handler exposes usage endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches usage routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/repos/:id/usage", h.getUsage)
}

func (h *Handler) getUsage(c *gin.Context) {
	repoID := c.Param("id")
	c.Set(middleware.RepositoryIDKey, repoID)
	sum, err := h.Svc.Summary(c.Request.Context(), repoID)
	if err != nil {
		if !respond.Canceled(c, err) {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch usage", nil)
		}
		return
	}
	respond.OK(c, sum)
}
