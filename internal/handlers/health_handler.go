package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is implemented by the journal database
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthCheck reports liveness; with a journal configured its database is pinged too
func HealthCheck(db Pinger, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		journal := "disabled"
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"journal": "unhealthy",
					"error":   err.Error(),
				})
				return
			}
			journal = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"journal":   journal,
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
