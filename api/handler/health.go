package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/webgrabber/models"
)

// Version is the webgrabber release version reported by the health
// endpoint, overridden at build time via -ldflags where applicable.
var Version = "0.1.0"

// Health returns a handler for GET /api/v1/health. Active run count is
// computed over the same in-process run registry PostRun/GetRun use.
func Health(startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		active := 0
		runStore.Range(func(_, value any) bool {
			job := value.(*runJob)
			job.mu.Lock()
			if job.status == "running" {
				active++
			}
			job.mu.Unlock()
			return true
		})

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     "healthy",
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			Version:    Version,
			ActiveRuns: active,
		})
	}
}
