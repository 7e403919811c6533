package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kosarica/deal-service/internal/alerts"
)

// TriggerCheck starts one price check cycle. With wait=true the response
// carries the cycle report; otherwise it returns 202 at once.
// POST /internal/check
func (a *API) TriggerCheck(c *gin.Context) {
	done, err := a.engine.TriggerCycle(a.baseCtx)
	if errors.Is(err, alerts.ErrCycleInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to start price check")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start price check"})
		return
	}

	if c.Query("wait") != "true" {
		go a.logCycle(done)
		c.JSON(http.StatusAccepted, gin.H{"status": "started"})
		return
	}

	select {
	case res := <-done:
		if res.Err != nil {
			a.logger.Error().Err(res.Err).Msg("Price check failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": res.Err.Error(), "report": res.Report})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "finished", "report": res.Report})
	case <-c.Request.Context().Done():
		go a.logCycle(done)
	}
}

func (a *API) logCycle(done <-chan alerts.CycleResult) {
	res := <-done
	if res.Err != nil {
		a.logger.Error().Err(res.Err).Msg("Triggered price check failed")
		return
	}
	a.logger.Info().
		Int("alerts", res.Report.Alerts).
		Dur("duration", res.Report.Duration).
		Msg("Triggered price check finished")
}
