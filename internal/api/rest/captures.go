package rest

import (
	"errors"
	"net/http"

	"github.com/fieldops/OpenFieldAgent/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// POST /api/v1/jobs/:id/captures/photo
func (s *Server) capturePhoto(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
		Purpose  string `json:"purpose" binding:"required"`
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

	item, err := session.Captures.Capture(c.Request.Context(), req.DeviceID, types.CapturePurpose(req.Purpose))
	if errors.Is(err, types.ErrCaptureCancelled) {
		// Technician dismissed the capture UI.
		c.JSON(http.StatusOK, gin.H{"cancelled": true})
		return
	}
	if err != nil {
		s.logger.Warn("Photo capture failed",
			zap.String("job_id", c.Param("id")),
			zap.String("device_id", req.DeviceID),
			zap.Error(err))
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item})
}

// POST /api/v1/jobs/:id/captures/signature
func (s *Server) captureSignature(c *gin.Context) {
	var req struct {
		SignerName string `json:"signer_name"`
		SignerID   string `json:"signer_id"`
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

	item, err := session.Captures.CaptureSignature(c.Request.Context(), req.SignerName, req.SignerID)
	if errors.Is(err, types.ErrCaptureCancelled) {
		c.JSON(http.StatusOK, gin.H{"cancelled": true})
		return
	}
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item})
}

// GET /api/v1/jobs/:id/captures
func (s *Server) listCaptures(c *gin.Context) {
	session, ok := s.lm.SessionFor(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("WF_404", "Job is not open", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": session.Captures.Items()})
}
