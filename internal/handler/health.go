package handler

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	// TokenFile is checked for readiness: the daemon cannot trade
	// without a seeded credential.
	TokenFile string
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) ready(c *gin.Context) {
	if h.TokenFile != "" {
		if _, err := os.Stat(h.TokenFile); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "token_missing"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
