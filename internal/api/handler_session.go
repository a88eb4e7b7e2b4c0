package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet-monitor-backend/internal/session"
)

type startSessionRequest struct {
	Employee string `json:"employee" binding:"required"`
}

// GetSession handles GET /api/session.
func (h *Handler) GetSession(c *gin.Context) {
	s, err := h.Sessions.Current()
	if errors.Is(err, session.ErrNoSession) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}

// StartSession handles POST /api/session.
func (h *Handler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.Sessions.Start(req.Employee)
	if errors.Is(err, session.ErrEmptyEmployee) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, s)
}

// EndSession handles DELETE /api/session.
func (h *Handler) EndSession(c *gin.Context) {
	if err := h.Sessions.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
