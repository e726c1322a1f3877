package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagesnap/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// BatchReporter reports whether a batch is running.
type BatchReporter interface {
	Active() bool
}

// Health returns a handler for GET /api/v1/health.
//
// Status is "busy" while a batch holds the browser; new batches queue
// behind it.
func Health(svc BatchReporter, mode string, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		active := svc.Active()

		status := "healthy"
		if active {
			status = "busy"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:      status,
			Uptime:      time.Since(startTime).Round(time.Second).String(),
			Mode:        mode,
			BatchActive: active,
			Version:     Version,
		})
	}
}
