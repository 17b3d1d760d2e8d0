package handlers

import (
	"net/http"

	"github.com/bitatlas/trustgate/internal/store"

	"github.com/gin-gonic/gin"
)

// HealthHandler exposes liveness of the service and its credential store.
type HealthHandler struct {
	store *store.Store
}

func NewHealthHandler(s *store.Store) *HealthHandler {
	return &HealthHandler{store: s}
}

// Health handles GET /healthz.
func (h *HealthHandler) Health(c *gin.Context) {
	if err := h.store.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Index handles GET /.
func (h *HealthHandler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "trustgate",
		"status":  "ok",
	})
}
