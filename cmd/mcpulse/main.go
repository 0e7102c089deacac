// MCPulse - Minecraft Server Status Poller & Monitor
//
// MCPulse polls Java and Bedrock edition Minecraft servers over their
// native status protocols, keeps a persistent check history, exposes a
// REST API with an embedded dashboard, and publishes real-time telemetry
// via MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcpulse-project/mcpulse/internal/alert"
	"github.com/mcpulse-project/mcpulse/internal/api"
	"github.com/mcpulse-project/mcpulse/internal/cli"
	"github.com/mcpulse-project/mcpulse/internal/config"
	"github.com/mcpulse-project/mcpulse/internal/db"
	"github.com/mcpulse-project/mcpulse/internal/dnscache"
	"github.com/mcpulse-project/mcpulse/internal/events"
	"github.com/mcpulse-project/mcpulse/internal/health"
	"github.com/mcpulse-project/mcpulse/internal/monitor"
	"github.com/mcpulse-project/mcpulse/internal/ping"
	"github.com/mcpulse-project/mcpulse/internal/scheduler"
	"github.com/mcpulse-project/mcpulse/internal/telemetry"
	"github.com/mcpulse-project/mcpulse/internal/util"
)

const (
	AppName    = "MCPulse"
	AppVersion = "1.0.0"
	Banner     = `
  __  __  _____ _____       _
 |  \/  |/ ____|  __ \     | |
 | \  / | |    | |__) |   _| |___  ___
 | |\/| | |    |  ___/ | | | / __|/ _ \
 | |  | | |____| |   | |_| | \__ \  __/
 |_|  |_|\_____|_|    \__,_|_|___/\___|
                                v%s
 Minecraft Server Status Poller & Monitor
`
)

func main() {
	// Print banner
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (will be reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting MCPulse")

	// Load configuration
	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Re-initialize logger with config-based settings
	logging := cfg.GetLogging()
	logCfg := util.LogConfig{
		Level:      logging.Level,
		Directory:  logging.Directory,
		MaxSizeMB:  logging.MaxSizeMB,
		MaxBackups: logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	// Validate configuration
	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}

		if cfg.IsFirstRun() {
			log.Info().Msg("first run detected, launching setup wizard")
			if err := config.RunSetupWizard(cfg); err != nil {
				log.Fatal().Err(err).Msg("setup wizard failed")
			}
		} else {
			log.Fatal().Msg("configuration validation failed, please fix the errors above")
		}
	} else if cfg.IsFirstRun() {
		log.Info().Msg("first run detected, launching setup wizard")
		if err := config.RunSetupWizard(cfg); err != nil {
			log.Warn().Err(err).Msg("setup wizard failed, continuing with defaults")
		}
	}

	// Log system info
	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize core components
	eventBus := events.NewEventBus()

	pingCfg := cfg.GetPing()
	cache := dnscache.New(time.Duration(pingCfg.DNSCacheTTLSeconds) * time.Second)
	client := ping.NewClient().
		WithTimeout(time.Duration(pingCfg.TimeoutSeconds) * time.Second).
		WithMaxParallel(pingCfg.MaxParallel).
		WithResolver(cache)

	// Persistent stores
	historyDir := cfg.GetHistory().Directory
	historyDB, err := db.NewHistoryDatabase(filepath.Join(historyDir, "history.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open history database")
	}
	authDB, err := db.NewAuthDatabase(filepath.Join(historyDir, "auth.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open auth database")
	}

	// Seed a default admin token on the first authenticated run so the
	// operator can reach the API at all.
	if !cfg.GetSecurity().AuthDisabled {
		token, created, err := authDB.EnsureAdminToken()
		if err != nil {
			log.Warn().Err(err).Msg("failed to ensure admin token")
		} else if created {
			log.Info().Str("token", token).Msg("created default admin API token, store it safely (shown only once)")
		}
	}

	// Watchlist registry
	watch := monitor.NewManager(cfg, eventBus)

	// Seed the watchlist from config and from entries persisted in earlier runs
	for _, s := range cfg.GetMonitor().Servers {
		if watch.Track(s.Address, s.Edition) {
			if _, err := historyDB.WatchlistAdd(s.Address, s.Edition); err != nil {
				log.Warn().Err(err).Str("address", s.Address).Msg("failed to persist configured watchlist entry")
			}
		}
	}
	if entries, err := historyDB.Watchlist(); err != nil {
		log.Warn().Err(err).Msg("failed to load persisted watchlist")
	} else {
		for _, entry := range entries {
			watch.Track(entry.Address, entry.Edition)
		}
	}
	log.Info().Int("servers", watch.Counts().Total).Msg("watchlist loaded")

	// Webhook alert notifier (subscribes on the bus in its constructor)
	alert.NewWebhookNotifier(cfg, eventBus, historyDB)

	// Initialize REST API
	apiServer := api.NewServer(cfg, eventBus, watch, client)
	apiServer.SetDependencies(historyDB, authDB, cache, func(timeout time.Duration, maxParallel int) api.Pinger {
		return ping.NewClient().
			WithTimeout(timeout).
			WithMaxParallel(maxParallel).
			WithResolver(cache)
	})

	// Initialize health check manager
	healthMgr := health.NewManager(cfg, eventBus, watch, historyDB, cache)

	// Initialize MQTT telemetry
	var mqttHandler *telemetry.MQTTHandler
	if cfg.GetMQTT().Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	// Initialize scheduler (watchlist polling, history pruning)
	sched := scheduler.NewScheduler(cfg, eventBus, client, watch, historyDB)

	// Initialize CLI
	cliHandler := cli.NewCLI(cfg, eventBus, watch, historyDB, cache, client)

	// ---------------------------------------------------------------
	// Launch all concurrent tasks
	// ---------------------------------------------------------------
	var wg sync.WaitGroup
	errCh := make(chan error, 10)

	// Task 1: REST API server (with retry for port binding)
	if cfg.GetAPI().Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", cfg.GetAPI().Port).Msg("starting REST API server")
			if err := startWithRetry(ctx, "API server", apiServer.Start, 15); err != nil {
				log.Error().Err(err).Msg("API server failed after retries")
				errCh <- fmt.Errorf("api server: %w", err)
			}
		}()
	}

	// Task 2: Watchlist scheduler
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting watchlist scheduler")
		sched.Start(ctx)
	}()

	// Task 3: Health check manager
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting health check manager")
		healthMgr.Start(ctx)
	}()

	// Task 4: MQTT telemetry
	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	// Task 5: Interactive CLI
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting interactive CLI")
		cliHandler.Start(ctx)
	}()

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	shutdownCh := make(chan struct{})
	eventBus.Subscribe(events.EventShutdown, "main", func(ctx context.Context, event events.Event) error {
		select {
		case <-shutdownCh:
		default:
			close(shutdownCh)
		}
		return nil
	})

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")

	// Cancel the root context to signal all goroutines
	cancel()

	// Emit shutdown event for components that act on it
	eventBus.Emit(context.Background(), events.Event{
		Type:   events.EventShutdown,
		Source: "main",
	})

	// Wait for all goroutines with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	// Stop the event bus
	eventBus.Stop()

	// Shutdown MQTT
	if mqttHandler != nil {
		mqttHandler.PublishShutdown()
	}

	// Close persistent stores
	if err := historyDB.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close history database")
	}
	if err := authDB.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close auth database")
	}

	log.Info().Msg("MCPulse stopped")
}

// startWithRetry attempts to start a listener/server with retry on bind
// errors. Uses a fixed 3-second interval between retries, which gives the
// OS time to release sockets from a previous run. Returns nil on success,
// or the last error after all retries fail.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			time.Sleep(3 * time.Second)
		}
	}
	return lastErr
}
