package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voxdesk/voxdesk/internal/db"
	"gorm.io/gorm"

	log "github.com/sirupsen/logrus"
)

// HealthHandler reports process and database liveness.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(conn *gorm.DB) *HealthHandler {
	return &HealthHandler{db: conn}
}

// Healthz pings the database.
func (h *HealthHandler) Healthz(c *gin.Context) {
	if errPing := db.Ping(h.db); errPing != nil {
		log.WithError(errPing).Warn("healthz: database unreachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
