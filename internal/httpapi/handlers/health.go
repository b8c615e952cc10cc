package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pentabot/backend/internal/common"
	"github.com/pentabot/backend/internal/db"
)

func (h *Handler) Root(c *gin.Context) {
	common.OK(c, http.StatusOK, gin.H{
		"message": "PentaBot API is running",
		"version": h.Version,
		"endpoints": gin.H{
			"health": "/health",
			"api":    "/api",
		},
	})
}

func (h *Handler) Health(c *gin.Context) {
	now := time.Now().UTC().Format(time.RFC3339)
	if err := db.Ping(c.Request.Context(), h.DB); err != nil {
		common.OK(c, http.StatusServiceUnavailable, gin.H{
			"status":    "error",
			"timestamp": now,
			"database":  "disconnected",
			"error":     err.Error(),
		})
		return
	}
	common.OK(c, http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": now,
		"database":  "connected",
	})
}
