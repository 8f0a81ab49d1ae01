package issues

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"issue-scout/internal/shared/server/middleware"
	"issue-scout/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches issue routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/issues", h.list)
	rg.GET("/issues/:id", h.get)
	rg.PATCH("/issues/:id", h.update)
	rg.POST("/issues/:id/publish", h.publish)
}

type publishRequest struct {
	URL string `json:"url"`
}

func (h *Handler) list(c *gin.Context) {
	filter := ListFilter{
		RepositoryID: c.Query("repo_id"),
		Status:       Status(c.Query("status")),
	}
	if filter.RepositoryID != "" {
		c.Set(middleware.RepositoryIDKey, filter.RepositoryID)
	}
	items, err := h.Svc.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, items)
}

func (h *Handler) get(c *gin.Context) {
	d, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, d)
}

func (h *Handler) update(c *gin.Context) {
	var patch Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	updated, err := h.Svc.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, updated)
}

func (h *Handler) publish(c *gin.Context) {
	var req publishRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}
	published, err := h.Svc.Publish(c.Request.Context(), c.Param("id"), req.URL)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, gin.H{
		"success":   true,
		"message":   "Status updated to published",
		"candidate": published,
	})
}

func writeError(c *gin.Context, err error) {
	if respond.Canceled(c, err) {
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "Issue not found", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "issue request failed", nil)
	}
}
