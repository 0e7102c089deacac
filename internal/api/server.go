package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mcpulse-project/mcpulse/dashboard"
	"github.com/mcpulse-project/mcpulse/internal/config"
	"github.com/mcpulse-project/mcpulse/internal/db"
	"github.com/mcpulse-project/mcpulse/internal/dnscache"
	"github.com/mcpulse-project/mcpulse/internal/events"
	"github.com/mcpulse-project/mcpulse/internal/monitor"
	intnet "github.com/mcpulse-project/mcpulse/internal/network"
	"github.com/mcpulse-project/mcpulse/internal/ping"
	"github.com/mcpulse-project/mcpulse/internal/util"
)

// Pinger abstracts the query engine so handlers can be tested with a fake.
type Pinger interface {
	Ping(ctx context.Context, target ping.Target) ping.Outcome
	PingMany(ctx context.Context, targets []ping.Target) []ping.Outcome
}

// PingerFactory builds a query engine for one request when the caller
// overrides the configured timeout or parallelism.
type PingerFactory func(timeout time.Duration, maxParallel int) Pinger

// Server is the REST API server for MCPulse.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	watch    *monitor.Manager
	pinger   Pinger

	// Dependencies
	history   *db.HistoryDatabase
	auth      *db.AuthDatabase
	cache     *dnscache.Cache
	newPinger PingerFactory
	authMw    *AuthMiddleware
	jobs      *jobManager

	// HTTP server
	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, eventBus *events.EventBus, watch *monitor.Manager, pinger Pinger) *Server {
	// Set Gin mode based on log level
	if cfg.GetLogging().Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:      cfg,
		eventBus: eventBus,
		watch:    watch,
		pinger:   pinger,
	}
}

// SetDependencies injects runtime dependencies (called after all components
// are initialized).
func (s *Server) SetDependencies(history *db.HistoryDatabase, auth *db.AuthDatabase,
	cache *dnscache.Cache, factory PingerFactory) {
	s.history = history
	s.auth = auth
	s.cache = cache
	s.newPinger = factory
}

// Start initializes and starts the API server.
func (s *Server) Start(ctx context.Context) error {
	if s.auth == nil {
		var err error
		s.auth, err = db.NewAuthDatabase("data/auth.db")
		if err != nil {
			return fmt.Errorf("failed to initialize auth database: %w", err)
		}
	}
	if s.newPinger == nil {
		s.newPinger = func(timeout time.Duration, maxParallel int) Pinger {
			client := ping.NewClient().WithTimeout(timeout).WithMaxParallel(maxParallel)
			if s.cache != nil {
				client = client.WithResolver(s.cache)
			}
			return client
		}
	}

	// Build router
	s.router = s.buildRouter()
	defer s.jobs.stop()

	// Create HTTP server
	addr := fmt.Sprintf(":%d", s.cfg.GetAPI().Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// TLS configuration
	security := s.cfg.GetSecurity()
	if security.TLSEnabled {
		certFile, keyFile, err := s.ensureCertificate(security)
		if err != nil {
			return err
		}
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
	}

	// Create listener with SO_REUSEADDR for immediate rebinding after restart
	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", addr).Bool("tls", security.TLSEnabled).Msg("REST API server starting")

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if security.TLSEnabled {
		tlsListener := tls.NewListener(ln, s.httpServer.TLSConfig)
		err = s.httpServer.Serve(tlsListener)
	} else {
		err = s.httpServer.Serve(ln)
	}

	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}

	return nil
}

// ensureCertificate returns the configured certificate pair, generating a
// self-signed one when none is configured or the files are missing.
func (s *Server) ensureCertificate(security config.SecurityConfig) (string, string, error) {
	certFile := security.TLSCertFile
	keyFile := security.TLSKeyFile
	if certFile == "" || keyFile == "" {
		certFile = "config/api_cert.pem"
		keyFile = "config/api_key.pem"
	}

	_, certErr := os.Stat(certFile)
	_, keyErr := os.Stat(keyFile)
	if certErr == nil && keyErr == nil {
		return certFile, keyFile, nil
	}

	log.Info().Str("cert", certFile).Msg("TLS certificate missing, generating self-signed")
	if err := os.MkdirAll(filepath.Dir(certFile), 0755); err != nil {
		return "", "", fmt.Errorf("failed to create certificate directory: %w", err)
	}
	if err := util.GenerateSelfSignedCert(certFile, keyFile); err != nil {
		return "", "", fmt.Errorf("failed to generate TLS certificate: %w", err)
	}
	return certFile, keyFile, nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	if s.jobs == nil {
		s.jobs = newJobManager(defaultJobTTL, defaultJobCleanupInterval)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	// CORS
	allowedOrigins := s.cfg.GetSecurity().AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	// Rate limiting
	rateLimiter := NewRateLimiter(s.cfg.GetSecurity().RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	// Auth middleware
	s.authMw = NewAuthMiddleware(s.auth, s.cfg)
	router.Use(s.authMw.IPWhitelist())

	// ---- Public endpoints (no auth required) ----
	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/info", s.handleInfo)
		public.GET("/status", s.handleStatus)
	}

	// ---- Protected endpoints ----
	protected := router.Group("/api")
	protected.Use(s.authMw.RequireAuth())

	// Monitor-level endpoints
	mon := protected.Group("/monitor")
	mon.Use(s.authMw.RequirePermission(PermMonitor))
	{
		mon.GET("/watchlist", s.handleGetWatchlist)
		mon.GET("/history", s.handleGetHistory)
		mon.GET("/system", s.handleGetSystem)
		mon.GET("/dns_cache", s.handleGetDNSCache)
		mon.GET("/log_entries", s.handleGetLogEntries)
	}

	// Control-level endpoints
	control := protected.Group("/control")
	control.Use(s.authMw.RequirePermission(PermControl))
	{
		control.POST("/query", s.handleQuery)
		control.POST("/jobs", s.handleCreateJob)
		control.GET("/jobs", s.handleListJobs)
		control.GET("/jobs/:id", s.handleGetJob)
		control.DELETE("/jobs/:id", s.handleDeleteJob)
		control.POST("/watchlist", s.handleWatchlistAdd)
		control.DELETE("/watchlist", s.handleWatchlistRemove)
		control.POST("/flush_dns", s.handleFlushDNS)
	}

	// Configure-level endpoints
	configure := protected.Group("/configure")
	configure.Use(s.authMw.RequirePermission(PermConfigure))
	{
		configure.GET("/get_config", s.handleGetConfig)
		configure.POST("/set_ping", s.handleSetPing)
		configure.POST("/set_monitor", s.handleSetMonitor)

		// Token management
		configure.GET("/tokens", s.handleListTokens)
		configure.POST("/tokens", s.handleCreateToken)
		configure.DELETE("/tokens/:id", s.handleDeleteToken)
		configure.GET("/roles", s.handleGetRoles)
	}

	// ---- Dashboard (embedded SPA) ----
	// The dashboard is compiled into the binary; running mcpulse alone
	// serves both API and UI on one port.
	dist, err := fs.Sub(dashboard.DistFS, "dist")
	if err == nil {
		router.NoRoute(func(c *gin.Context) {
			// Don't intercept API routes -- let them 404 normally
			if strings.HasPrefix(c.Request.URL.Path, "/api/") {
				c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
				return
			}
			path := strings.TrimPrefix(c.Request.URL.Path, "/")
			if path == "" {
				path = "index.html"
			}
			if _, err := fs.Stat(dist, path); err != nil {
				// SPA fallback: unknown paths get index.html so
				// client-side routing works.
				path = "index.html"
			}
			c.FileFromFS(path, http.FS(dist))
		})
	} else {
		log.Warn().Err(err).Msg("embedded dashboard unavailable")
		router.NoRoute(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/api/") {
				c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"message": "MCPulse API is running"})
		})
	}

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
