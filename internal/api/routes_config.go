package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mcpulse-project/mcpulse/internal/config"
	"github.com/mcpulse-project/mcpulse/internal/events"
)

// handleGetConfig returns the full current configuration.
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ping":     s.cfg.GetPing(),
		"monitor":  s.cfg.GetMonitor(),
		"history":  s.cfg.GetHistory(),
		"api":      s.cfg.GetAPI(),
		"mqtt":     s.cfg.GetMQTT(),
		"alerts":   s.cfg.GetAlerts(),
		"security": s.cfg.GetSecurity(),
		"logging":  s.cfg.GetLogging(),
	})
}

// handleSetPing updates the query engine configuration. Running batch
// queries are unaffected; the new values apply to subsequent pings.
func (s *Server) handleSetPing(c *gin.Context) {
	var pingCfg config.PingConfig
	if err := c.ShouldBindJSON(&pingCfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.cfg.SetPing(pingCfg)

	if err := s.cfg.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	s.eventBus.Emit(c.Request.Context(), events.Event{
		Type:   events.EventConfigChanged,
		Source: "api",
		Payload: events.ConfigChangedPayload{
			Section: "ping",
		},
	})

	log.Info().Msg("API: ping configuration updated")

	c.JSON(http.StatusOK, gin.H{
		"status": "updated",
		"data":   s.cfg.GetPing(),
	})
}

// handleSetMonitor updates the watchlist polling configuration.
func (s *Server) handleSetMonitor(c *gin.Context) {
	var monitorCfg config.MonitorConfig
	if err := c.ShouldBindJSON(&monitorCfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.cfg.SetMonitor(monitorCfg)

	if err := s.cfg.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	s.eventBus.Emit(c.Request.Context(), events.Event{
		Type:   events.EventConfigChanged,
		Source: "api",
		Payload: events.ConfigChangedPayload{
			Section: "monitor",
		},
	})

	log.Info().Msg("API: monitor configuration updated")

	c.JSON(http.StatusOK, gin.H{
		"status": "updated",
		"data":   s.cfg.GetMonitor(),
	})
}

// handleListTokens returns all issued API tokens (prefixes only).
func (s *Server) handleListTokens(c *gin.Context) {
	tokens, err := s.auth.ListTokens()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// handleCreateToken issues a new token. The full value is only present in
// this response; afterwards only the prefix is retrievable.
func (s *Server) handleCreateToken(c *gin.Context) {
	var body struct {
		Name string `json:"name" binding:"required"`
		Role string `json:"role"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if body.Role == "" {
		body.Role = "viewer"
	}

	token, err := s.auth.CreateToken(body.Name, body.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "created",
		"name":   body.Name,
		"role":   body.Role,
		"token":  token,
	})
}

// handleDeleteToken revokes a token by ID.
func (s *Server) handleDeleteToken(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token id"})
		return
	}

	if err := s.auth.DeleteToken(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	// Drop cached verifications so the revocation is immediate.
	if s.authMw != nil {
		s.authMw.Invalidate()
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "deleted",
		"id":     id,
	})
}

// handleGetRoles returns all available roles.
func (s *Server) handleGetRoles(c *gin.Context) {
	roles, err := s.auth.Roles()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}
