package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagediff/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// SessionStatter reports browser session utilisation. *capture.Capturer
// implements it.
type SessionStatter interface {
	Stats() models.SessionStats
}

// Health returns a handler for GET /api/v1/health.
//
// Reports session utilisation and degrades status when > 80% of browser
// sessions are in use.
func Health(sessions SessionStatter, storeDriver string, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sessions.Stats()

		status := "healthy"
		if stats.MaxSessions > 0 && stats.ActiveSessions > int(float64(stats.MaxSessions)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:       status,
			Uptime:       time.Since(startTime).Round(time.Second).String(),
			SessionStats: stats,
			Store:        storeDriver,
			Version:      Version,
		})
	}
}
