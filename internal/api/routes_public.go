package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mcpulse-project/mcpulse/internal/ping"
	"github.com/mcpulse-project/mcpulse/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "mcpulse",
		"version": "1.0.0",
	})
}

// handleInfo returns service and host information plus watchlist counts.
func (s *Server) handleInfo(c *gin.Context) {
	sysInfo := util.GetSystemInfo()
	counts := s.watch.Counts()

	c.JSON(http.StatusOK, gin.H{
		"service":         "mcpulse",
		"version":         "1.0.0",
		"platform":        sysInfo.Platform,
		"hostname":        sysInfo.Hostname,
		"cpu_model":       sysInfo.CPUModel,
		"cpu_cores":       sysInfo.CPUCores,
		"total_memory_mb": sysInfo.TotalMemory,
		"watched":         counts.Total,
		"up":              counts.Up,
		"down":            counts.Down,
	})
}

// handleStatus runs a one-off status query for a single server. This is
// the public, rate-limited surface; batch queries require control access.
func (s *Server) handleStatus(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address query parameter is required"})
		return
	}

	edition, err := ping.ParseEdition(c.DefaultQuery("edition", string(ping.EditionJava)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "edition must be 'java' or 'bedrock'"})
		return
	}

	outcome := s.pinger.Ping(c.Request.Context(), ping.Target{Address: address, Edition: edition})
	c.JSON(http.StatusOK, outcome)
}
