package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mcpulse-project/mcpulse/internal/ping"
	"github.com/mcpulse-project/mcpulse/internal/util"
)

// handleGetWatchlist returns the state of every watched server.
func (s *Server) handleGetWatchlist(c *gin.Context) {
	snapshots := s.watch.Snapshots()
	counts := s.watch.Counts()

	c.JSON(http.StatusOK, gin.H{
		"servers": snapshots,
		"total":   counts.Total,
		"up":      counts.Up,
		"down":    counts.Down,
		"unknown": counts.Unknown,
	})
}

// handleGetHistory returns stored results, either for one server or the
// most recent across all servers.
func (s *Server) handleGetHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	address := c.Query("address")
	if address == "" {
		records, err := s.history.Recent(limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": records, "count": len(records)})
		return
	}

	edition, err := ping.ParseEdition(c.DefaultQuery("edition", string(ping.EditionJava)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "edition must be 'java' or 'bedrock'"})
		return
	}

	records, err := s.history.History(address, string(edition), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	days, _ := strconv.Atoi(c.DefaultQuery("uptime_days", "7"))
	uptime, samples, _ := s.history.Uptime(address, string(edition), days)

	c.JSON(http.StatusOK, gin.H{
		"address":        address,
		"edition":        edition,
		"results":        records,
		"count":          len(records),
		"uptime_percent": uptime,
		"uptime_samples": samples,
	})
}

// handleGetSystem returns host resource usage.
func (s *Server) handleGetSystem(c *gin.Context) {
	cpu, err := util.GetCPUUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	mem, err := util.GetMemoryUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	dataDir := s.cfg.GetHistory().Directory
	if dataDir == "" {
		dataDir = "."
	}
	disk, err := util.GetDiskUsage(dataDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cpu_percent": cpu,
		"memory":      mem,
		"disk":        disk,
	})
}

// handleGetDNSCache reports resolver cache statistics.
func (s *Server) handleGetDNSCache(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"entries":     s.cache.Len(),
		"ttl_seconds": int(s.cache.TTL().Seconds()),
	})
}

// handleGetLogEntries returns recent log entries. Zerolog writes JSON
// lines; they are parsed into structured objects for the dashboard.
func (s *Server) handleGetLogEntries(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "100"))
	if err != nil || count < 1 {
		count = 100
	}
	if count > 1000 {
		count = 1000
	}

	entries, err := util.ReadRecentLogEntries(s.cfg.GetLogging().Directory, count)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}
