package scans

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"issue-scout/internal/repos"
	"issue-scout/internal/shared/server/middleware"
	"issue-scout/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the coordinator.
type Handler struct {
	Coord *Coordinator
}

// NewHandler constructs a Handler.
func NewHandler(coord *Coordinator) *Handler {
	return &Handler{Coord: coord}
}

// RegisterRoutes attaches scan routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/repos/:id/scan", h.trigger)
	rg.POST("/repos/:id/resume-scan", h.resume)
	rg.POST("/repos/:id/cancel-scan", h.cancelRepository)
	rg.GET("/repos/:id/scan-progress", h.repositoryProgress)
	rg.GET("/scans/:id/progress", h.progress)
	rg.POST("/scans/:id/cancel", h.cancel)
}

type triggerResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ScanJobID string `json:"scanJobId"`
}

func (h *Handler) trigger(c *gin.Context) {
	repoID := c.Param("id")
	c.Set(middleware.RepositoryIDKey, repoID)
	job, err := h.Coord.Trigger(c.Request.Context(), repoID, middleware.UserIDFromContext(c), false)
	if err != nil {
		writeScanError(c, err)
		return
	}
	c.Set(middleware.ScanJobIDKey, job.ID)
	respond.Accepted(c, triggerResponse{Success: true, Message: "Scan started", ScanJobID: job.ID})
}

func (h *Handler) resume(c *gin.Context) {
	repoID := c.Param("id")
	c.Set(middleware.RepositoryIDKey, repoID)
	job, err := h.Coord.Resume(c.Request.Context(), repoID, middleware.UserIDFromContext(c))
	if err != nil {
		writeScanError(c, err)
		return
	}
	c.Set(middleware.ScanJobIDKey, job.ID)
	respond.Accepted(c, triggerResponse{Success: true, Message: "Scan resumed", ScanJobID: job.ID})
}

func (h *Handler) cancelRepository(c *gin.Context) {
	repoID := c.Param("id")
	c.Set(middleware.RepositoryIDKey, repoID)
	job, err := h.Coord.CancelRepository(c.Request.Context(), repoID)
	if err != nil {
		writeScanError(c, err)
		return
	}
	c.Set(middleware.ScanJobIDKey, job.ID)
	respond.OK(c, gin.H{"success": true, "message": "Scan cancelled", "scanJobId": job.ID})
}

func (h *Handler) cancel(c *gin.Context) {
	jobID := c.Param("id")
	c.Set(middleware.ScanJobIDKey, jobID)
	job, err := h.Coord.Cancel(c.Request.Context(), jobID)
	if err != nil {
		writeScanError(c, err)
		return
	}
	respond.OK(c, gin.H{"success": true, "message": "Scan cancelled", "scanJobId": job.ID})
}

type repositoryProgressResponse struct {
	ScanJobID    string    `json:"scanJobId,omitempty"`
	Status       Status    `json:"status,omitempty"`
	Progress     *Progress `json:"progress"`
	SignalsFound int       `json:"signalsFound,omitempty"`
}

func (h *Handler) repositoryProgress(c *gin.Context) {
	repoID := c.Param("id")
	p, err := h.Coord.RepositoryProgress(c.Request.Context(), repoID)
	if errors.Is(err, ErrNotFound) {
		respond.OK(c, repositoryProgressResponse{})
		return
	}
	if err != nil {
		writeScanError(c, err)
		return
	}
	respond.OK(c, repositoryProgressResponse{
		ScanJobID:    p.ScanJobID,
		Status:       p.Status,
		Progress:     &p,
		SignalsFound: p.SignalsFound,
	})
}

func (h *Handler) progress(c *gin.Context) {
	p, err := h.Coord.GetProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeScanError(c, err)
		return
	}
	respond.OK(c, p)
}

func writeScanError(c *gin.Context, err error) {
	if respond.Canceled(c, err) {
		return
	}
	switch {
	case errors.Is(err, repos.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "Repository not found", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "scan not found", nil)
	case errors.Is(err, ErrScanInProgress):
		respond.Error(c, http.StatusConflict, "scan_in_progress", "A scan is already running for this repository", nil)
	case errors.Is(err, ErrNothingToResume):
		respond.Error(c, http.StatusBadRequest, "nothing_to_resume", "No scan to resume", nil)
	case errors.Is(err, ErrNotActive):
		respond.Error(c, http.StatusBadRequest, "not_active", "No active scan to cancel", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "scan request failed", nil)
	}
}
