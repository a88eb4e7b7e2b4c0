package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fleet-monitor-backend/internal/model"
	"fleet-monitor-backend/internal/session"
	"fleet-monitor-backend/internal/store"
)

// GetOpenExceptions handles GET /api/exceptions.
func (h *Handler) GetOpenExceptions(c *gin.Context) {
	open, err := h.Store.ListOpen(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve open exceptions"})
		return
	}
	if open == nil {
		open = []model.ExceptionOpen{}
	}
	c.JSON(http.StatusOK, open)
}

// GetExceptionHistory handles GET /api/exceptions/history.
func (h *Handler) GetExceptionHistory(c *gin.Context) {
	q := store.HistoryQuery{
		RobotID: c.Query("robot_id"),
		Outcome: model.Outcome(c.Query("outcome")),
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit'"})
			return
		}
		q.Limit = limit
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'since' timestamp format. Use RFC3339."})
			return
		}
		q.Since = since
	}
	switch q.Outcome {
	case "", model.OutcomeResolved, model.OutcomeAcknowledged, model.OutcomeInterrupted:
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'outcome'"})
		return
	}

	history, err := h.Store.ListHistory(c.Request.Context(), q)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve exception history"})
		return
	}
	if history == nil {
		history = []model.ExceptionHistory{}
	}
	c.JSON(http.StatusOK, history)
}

// AcknowledgeException handles POST /api/exceptions/{robot_id}/ack.
func (h *Handler) AcknowledgeException(c *gin.Context) {
	robotID := c.Param("robot_id")

	hist, err := h.Exceptions.Acknowledge(c.Request.Context(), robotID)
	switch {
	case errors.Is(err, session.ErrNoSession):
		c.JSON(http.StatusConflict, gin.H{"error": "start a session before acknowledging exceptions"})
		return
	case errors.Is(err, store.ErrNotOpen):
		c.JSON(http.StatusNotFound, gin.H{"error": "no open exception for robot " + robotID})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.Cache.Invalidate()
	c.JSON(http.StatusOK, hist)
}
