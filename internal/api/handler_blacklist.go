package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet-monitor-backend/internal/blacklist"
)

type blacklistBody struct {
	Ranges []blacklist.Range `json:"ranges"`
}

// GetBlacklist handles GET /api/blacklist.
func (h *Handler) GetBlacklist(c *gin.Context) {
	ranges, err := blacklist.Load(h.BlacklistPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, blacklistBody{Ranges: ranges})
}

// PutBlacklist handles PUT /api/blacklist: it validates and saves the ranges,
// then hands them to the poller for the next cycle.
func (h *Handler) PutBlacklist(c *gin.Context) {
	var req blacklistBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Ranges == nil {
		req.Ranges = []blacklist.Range{}
	}
	if err := blacklist.Validate(req.Ranges); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := blacklist.Save(h.BlacklistPath, req.Ranges); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if h.Blacklist != nil {
		h.Blacklist.SetBlacklist(req.Ranges)
	}

	c.JSON(http.StatusOK, req)
}
