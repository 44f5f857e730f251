package rest

import (
	"errors"
	"net/http"

	"github.com/fieldops/OpenFieldAgent/internal/types"
	"github.com/fieldops/OpenFieldAgent/internal/workflow"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps the workflow error taxonomy onto HTTP responses. Every
// class is recoverable; nothing here crashes the surface.
func (s *Server) respondError(c *gin.Context, err error) {
	var ve *types.ValidationError
	var ae *types.APIError

	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusUnprocessableEntity,
			types.NewErrorResponse("WF_PRECONDITION", ve.Reason, nil))
	case errors.Is(err, types.ErrLocationDenied):
		c.JSON(http.StatusConflict,
			types.NewErrorResponse("WF_LOCATION_DENIED",
				"Location permission is required for this action", nil))
	case errors.Is(err, types.ErrLocationUnavailable):
		c.JSON(http.StatusConflict,
			types.NewErrorResponse("WF_LOCATION_UNAVAILABLE",
				"Could not get a location fix, check that positioning is on", nil))
	case errors.Is(err, types.ErrSessionExpired):
		c.JSON(http.StatusUnauthorized,
			types.NewErrorResponse("WF_SESSION_EXPIRED",
				"Session expired, sign in again", nil))
	case errors.As(err, &ae):
		c.JSON(http.StatusBadGateway,
			types.NewErrorResponse("WF_BACKEND", ae.Message, nil))
	default:
		c.JSON(http.StatusInternalServerError,
			types.NewErrorResponse("WF_500", "Action failed, try again", err.Error()))
	}
}

// GET /api/v1/jobs/:id
//
// Opening a job that is already open counts as the workflow surface
// regaining focus and rehydrates checklist progress from the server.
func (s *Server) getJob(c *gin.Context) {
	jobID := c.Param("id")

	session, err := s.lm.OpenJob(c.Request.Context(), jobID)
	if err != nil {
		s.logger.Error("Failed to open job", zap.String("job_id", jobID), zap.Error(err))
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":    session.Job,
		"status": session.Runner.Status(),
	})
}

// GET /api/v1/jobs/:id/progress
func (s *Server) getProgress(c *gin.Context) {
	session, ok := s.lm.SessionFor(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("WF_404", "Job is not open", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{"devices": session.Progress.Snapshot()})
}

// POST /api/v1/jobs/:id/checklist/toggle
func (s *Server) toggleChecklistItem(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
		Index    *int   `json:"index" binding:"required"`
		Done     bool   `json:"done"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("WF_400", "Invalid request body", err.Error()))
		return
	}

	session, ok := s.lm.SessionFor(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("WF_404", "Job is not open", nil))
		return
	}

	if err := session.Progress.Toggle(req.DeviceID, *req.Index, req.Done); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"devices": session.Progress.Snapshot()})
}

// POST /api/v1/jobs/:id/command
func (s *Server) executeCommand(c *gin.Context) {
	var req struct {
		Command           string `json:"command" binding:"required"`
		PauseReason       string `json:"pause_reason,omitempty"`
		FinalObservations string `json:"final_observations,omitempty"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("WF_400", "Invalid request body", err.Error()))
		return
	}

	session, ok := s.lm.SessionFor(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("WF_404", "Job is not open", nil))
		return
	}

	cmd := workflow.Command(req.Command)
	if err := session.Runner.Execute(c.Request.Context(), cmd, req.PauseReason, req.FinalObservations); err != nil {
		s.logger.Warn("Workflow command failed",
			zap.String("job_id", c.Param("id")),
			zap.String("command", req.Command),
			zap.Error(err))
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Command accepted",
		"command": req.Command,
		"status":  session.Runner.Status(),
	})
}

// GET /api/v1/jobs/:id/elapsed
func (s *Server) getElapsed(c *gin.Context) {
	session, ok := s.lm.SessionFor(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("WF_404", "Job is not open", nil))
		return
	}

	elapsed, display := session.Monitor.Current()
	c.JSON(http.StatusOK, gin.H{
		"elapsed_ms": elapsed.Milliseconds(),
		"display":    display,
	})
}

// GET /api/v1/jobs/:id/back-allowed
func (s *Server) backAllowed(c *gin.Context) {
	session, ok := s.lm.SessionFor(c.Param("id"))
	if !ok {
		// No open session, nothing to guard.
		c.JSON(http.StatusOK, gin.H{"allowed": true})
		return
	}

	allowed, message := session.Guard.Intercept()
	c.JSON(http.StatusOK, gin.H{
		"allowed": allowed,
		"message": message,
	})
}
