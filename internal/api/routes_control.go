package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mcpulse-project/mcpulse/internal/ping"
)

// queryRequest is the body for sync and async batch queries. Timeout and
// parallelism overrides apply to this request only.
type queryRequest struct {
	Targets        []targetSpec `json:"targets" binding:"required,min=1,max=500"`
	TimeoutSeconds int          `json:"timeout_seconds"`
	MaxParallel    int          `json:"max_parallel"`
}

type targetSpec struct {
	Address string `json:"address" binding:"required"`
	Edition string `json:"edition"`
}

// parseTargets validates the request body into ping targets.
func parseTargets(specs []targetSpec) ([]ping.Target, error) {
	targets := make([]ping.Target, 0, len(specs))
	for _, spec := range specs {
		name := spec.Edition
		if name == "" {
			name = string(ping.EditionJava)
		}
		edition, err := ping.ParseEdition(name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, ping.Target{Address: spec.Address, Edition: edition})
	}
	return targets, nil
}

// pingerFor returns the engine to use for one request, building a
// dedicated one when the request overrides timeout or parallelism.
func (s *Server) pingerFor(req queryRequest) Pinger {
	if req.TimeoutSeconds <= 0 && req.MaxParallel <= 0 {
		return s.pinger
	}

	pingCfg := s.cfg.GetPing()
	timeout := time.Duration(pingCfg.TimeoutSeconds) * time.Second
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	parallel := pingCfg.MaxParallel
	if req.MaxParallel > 0 {
		parallel = req.MaxParallel
	}
	return s.newPinger(timeout, parallel)
}

// handleQuery runs a synchronous batch query and returns every outcome.
func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	targets, err := parseTargets(req.Targets)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	outcomes := s.pingerFor(req).PingMany(c.Request.Context(), targets)

	c.JSON(http.StatusOK, gin.H{
		"outcomes": outcomes,
		"count":    len(outcomes),
		"took_ms":  time.Since(start).Seconds() * 1000,
	})
}

// handleCreateJob starts an asynchronous batch query.
func (s *Server) handleCreateJob(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	targets, err := parseTargets(req.Targets)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := s.jobs.create(s.pingerFor(req), targets)
	log.Info().Str("job", job.ID).Int("targets", len(targets)).Msg("API: query job created")

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// handleListJobs returns all known jobs.
func (s *Server) handleListJobs(c *gin.Context) {
	jobs := s.jobs.list()
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// handleGetJob returns one job with its outcomes when finished.
func (s *Server) handleGetJob(c *gin.Context) {
	job, ok := s.jobs.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// handleDeleteJob discards a job and its results.
func (s *Server) handleDeleteJob(c *gin.Context) {
	id := c.Param("id")
	if !s.jobs.delete(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "job_id": id})
}

// watchlistTarget extracts and validates the address/edition query params
// shared by the watchlist handlers.
func watchlistTarget(c *gin.Context) (string, ping.Edition, bool) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address query parameter is required"})
		return "", "", false
	}
	edition, err := ping.ParseEdition(c.DefaultQuery("edition", string(ping.EditionJava)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "edition must be 'java' or 'bedrock'"})
		return "", "", false
	}
	return address, edition, true
}

// handleWatchlistAdd adds a server to the watchlist and persists it.
func (s *Server) handleWatchlistAdd(c *gin.Context) {
	address, edition, ok := watchlistTarget(c)
	if !ok {
		return
	}

	added := s.watch.Track(address, string(edition))
	if _, err := s.history.WatchlistAdd(address, string(edition)); err != nil {
		log.Warn().Err(err).Str("address", address).Msg("failed to persist watchlist entry")
	}

	if !added {
		c.JSON(http.StatusConflict, gin.H{"error": "server already on watchlist", "address": address})
		return
	}

	log.Info().Str("address", address).Str("edition", string(edition)).Msg("API: server added to watchlist")
	c.JSON(http.StatusOK, gin.H{
		"status":  "added",
		"address": address,
		"edition": edition,
	})
}

// handleWatchlistRemove removes a server from the watchlist.
func (s *Server) handleWatchlistRemove(c *gin.Context) {
	address, edition, ok := watchlistTarget(c)
	if !ok {
		return
	}

	removed := s.watch.Untrack(address, string(edition))
	if _, err := s.history.WatchlistRemove(address, string(edition)); err != nil {
		log.Warn().Err(err).Str("address", address).Msg("failed to remove persisted watchlist entry")
	}

	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "server not on watchlist", "address": address})
		return
	}

	log.Info().Str("address", address).Str("edition", string(edition)).Msg("API: server removed from watchlist")
	c.JSON(http.StatusOK, gin.H{
		"status":  "removed",
		"address": address,
		"edition": edition,
	})
}

// handleFlushDNS drops every cached DNS entry.
func (s *Server) handleFlushDNS(c *gin.Context) {
	flushed := s.cache.Flush()
	log.Info().Int("entries", flushed).Msg("API: DNS cache flushed")
	c.JSON(http.StatusOK, gin.H{
		"status":  "flushed",
		"entries": flushed,
	})
}
