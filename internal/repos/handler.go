package repos

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"issue-scout/internal/codehost"
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

// RegisterRoutes attaches repository routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/repos", h.list)
	rg.POST("/repos", h.add)
	rg.GET("/repos/:id", h.get)
	rg.DELETE("/repos/:id", h.delete)
}

type addRequest struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.Svc.List(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list repositories", nil)
		return
	}
	respond.OK(c, items)
}

func (h *Handler) add(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	repo, created, err := h.Svc.Add(c.Request.Context(), middleware.UserIDFromContext(c), req.Owner, req.Name)
	if err != nil {
		if respond.Canceled(c, err) {
			return
		}
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", "owner and name are required", nil)
		case errors.Is(err, codehost.ErrNotFound):
			respond.Error(c, http.StatusBadRequest, "repository_not_found", "Failed to add repository", err.Error())
		default:
			respond.Error(c, http.StatusBadRequest, "codehost_error", "Failed to add repository", err.Error())
		}
		return
	}
	c.Set(middleware.RepositoryIDKey, repo.ID)
	if created {
		respond.Created(c, repo)
		return
	}
	respond.OK(c, repo)
}

func (h *Handler) get(c *gin.Context) {
	repo, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRepoError(c, err)
		return
	}
	respond.OK(c, repo)
}

func (h *Handler) delete(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.RepositoryIDKey, id)
	if err := h.Svc.Delete(c.Request.Context(), id); err != nil {
		writeRepoError(c, err)
		return
	}
	respond.NoContent(c)
}

func writeRepoError(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) {
		respond.Error(c, http.StatusNotFound, "not_found", "Repository not found", nil)
		return
	}
	if respond.Canceled(c, err) {
		return
	}
	respond.Error(c, http.StatusInternalServerError, "internal_error", "repository lookup failed", nil)
}
