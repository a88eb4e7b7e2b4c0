package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetRobots handles GET /api/robots with the last good snapshot.
func (h *Handler) GetRobots(c *gin.Context) {
	snap, ok := h.Snapshots.Snapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no fleet data yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetHealth handles GET /api/health.
func (h *Handler) GetHealth(c *gin.Context) {
	health := h.Exceptions.Health(h.StaleAfter)
	status := http.StatusOK
	if health.Stale {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}
