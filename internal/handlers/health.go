package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 2 * time.Second

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// HealthCheck pings every configured dependency. Any failure turns the
// response into 503.
func (a *API) HealthCheck(c *gin.Context) {
	response := HealthResponse{Status: "ok"}
	code := http.StatusOK

	if len(a.pingers) > 0 {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		response.Dependencies = make(map[string]string, len(a.pingers))
		for name, ping := range a.pingers {
			if err := ping(ctx); err != nil {
				a.logger.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
				response.Dependencies[name] = "disconnected"
				response.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			response.Dependencies[name] = "connected"
		}
	}

	c.JSON(code, response)
}
