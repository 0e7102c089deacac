// Package scheduler implements background task scheduling for MCPulse:
// the periodic watchlist sweep and the daily history prune.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcpulse-project/mcpulse/internal/config"
	"github.com/mcpulse-project/mcpulse/internal/db"
	"github.com/mcpulse-project/mcpulse/internal/events"
	"github.com/mcpulse-project/mcpulse/internal/monitor"
	"github.com/mcpulse-project/mcpulse/internal/ping"
	"github.com/mcpulse-project/mcpulse/internal/util"
)

// Pinger abstracts the query engine so the sweep can be tested without
// real servers.
type Pinger interface {
	PingMany(ctx context.Context, targets []ping.Target) []ping.Outcome
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg      *config.Config
	eventBus *events.EventBus
	pinger   Pinger
	watch    *monitor.Manager
	history  *db.HistoryDatabase
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg *config.Config, eventBus *events.EventBus, pinger Pinger,
	watch *monitor.Manager, history *db.HistoryDatabase) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		eventBus: eventBus,
		pinger:   pinger,
		watch:    watch,
		history:  history,
	}
}

// Start begins running all scheduled tasks.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	// Watchlist sweep - runs at the configured interval
	if s.cfg.GetMonitor().Enabled {
		go s.runWatchLoop(ctx)
	}

	// History prune - runs at configured time daily
	go s.runPruneLoop(ctx)

	// Block until context is cancelled
	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

// runWatchLoop sweeps the watchlist at the configured interval.
func (s *Scheduler) runWatchLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.GetMonitor().IntervalSeconds) * time.Second
	if interval < time.Second {
		interval = time.Minute
	}

	log.Info().Dur("interval", interval).Msg("watchlist sweep scheduled")

	// First sweep right away so the dashboard is not empty for a full
	// interval after start.
	s.sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep queries every watched server once, feeds the results to the
// monitor through the event bus, and records them in history.
func (s *Scheduler) sweep(ctx context.Context) {
	snaps := s.watch.Snapshots()
	if len(snaps) == 0 {
		return
	}

	targets := make([]ping.Target, 0, len(snaps))
	for _, snap := range snaps {
		targets = append(targets, ping.Target{
			Address: snap.Address,
			Edition: ping.Edition(snap.Edition),
		})
	}

	start := time.Now()
	outcomes := s.pinger.PingMany(ctx, targets)

	var up, down int
	for _, outcome := range outcomes {
		payload := outcomePayload(outcome)
		if payload.Online {
			up++
		} else {
			down++
		}

		if err := s.eventBus.EmitSync(ctx, events.Event{
			Type:    events.EventPingCompleted,
			Source:  "scheduler",
			Payload: payload,
		}); err != nil {
			log.Error().Err(err).Str("address", payload.Address).Msg("ping event handler failed")
		}

		if err := s.history.InsertResult(db.ResultRecord{
			Address:       payload.Address,
			Edition:       payload.Edition,
			Online:        payload.Online,
			LatencyMs:     payload.LatencyMs,
			PlayersOnline: payload.PlayersOnline,
			PlayersMax:    payload.PlayersMax,
			Version:       payload.Version,
			Error:         payload.Error,
			CheckedAt:     payload.CheckedAt,
		}); err != nil {
			log.Error().Err(err).Str("address", payload.Address).Msg("failed to record result")
		}
	}

	log.Debug().
		Int("up", up).
		Int("down", down).
		Dur("took", time.Since(start)).
		Msg("watchlist sweep completed")
}

// outcomePayload flattens a query outcome into the event payload shared
// by the monitor, telemetry, and history.
func outcomePayload(outcome ping.Outcome) events.PingCompletedPayload {
	payload := events.PingCompletedPayload{
		Address:   outcome.Target.Address,
		Edition:   string(outcome.Target.Edition),
		CheckedAt: time.Now().UTC(),
	}

	if outcome.Err != nil {
		payload.Error = outcome.Err.Error()
		return payload
	}
	if outcome.Status == nil {
		payload.Error = "no status returned"
		return payload
	}

	payload.Online = outcome.Status.Online
	payload.LatencyMs = outcome.Status.LatencyMs

	switch {
	case outcome.Status.Java != nil:
		payload.PlayersOnline = outcome.Status.Java.OnlinePlayers
		payload.PlayersMax = outcome.Status.Java.MaxPlayers
		payload.Version = outcome.Status.Java.Version
	case outcome.Status.Bedrock != nil:
		payload.PlayersOnline, _ = strconv.Atoi(outcome.Status.Bedrock.OnlinePlayers)
		payload.PlayersMax, _ = strconv.Atoi(outcome.Status.Bedrock.MaxPlayers)
		payload.Version = outcome.Status.Bedrock.Version
	}

	return payload
}

// runPruneLoop runs the history prune at the configured time.
func (s *Scheduler) runPruneLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Calculate time until next prune
		nextRun := s.calculateNextPruneTime()
		sleepDuration := time.Until(nextRun)

		if sleepDuration <= 0 {
			sleepDuration = 24 * time.Hour
		}

		log.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("history prune scheduled")

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepDuration):
			s.runPrune()
		}
	}
}

// runPrune removes results past the retention window and reports storage
// statistics.
func (s *Scheduler) runPrune() {
	retentionDays := s.cfg.GetHistory().RetentionDays

	removed, err := s.history.Prune(retentionDays)
	if err != nil {
		log.Warn().Err(err).Msg("history prune failed")
		return
	}
	if err := s.history.PruneAlerts(retentionDays); err != nil {
		log.Warn().Err(err).Msg("alert prune failed")
	}

	remaining, _ := s.history.ResultCount()

	var dbSize string
	if fi, err := os.Stat(s.history.Path()); err == nil {
		dbSize = util.FormatBytes(uint64(fi.Size()))
	}

	log.Info().
		Int64("removed", removed).
		Int64("remaining", remaining).
		Str("db_size", dbSize).
		Msg("history prune completed")
}

// calculateNextPruneTime returns the next time the prune should run.
func (s *Scheduler) calculateNextPruneTime() time.Time {
	cleanupTime := s.cfg.GetHistory().CleanupTime
	parts := strings.Split(cleanupTime, ":")

	hour, minute := 4, 0 // Default: 4:00 AM
	if len(parts) >= 2 {
		fmt.Sscanf(parts[0], "%d", &hour)
		fmt.Sscanf(parts[1], "%d", &minute)
	}

	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())

	if next.Before(now) {
		next = next.Add(24 * time.Hour)
	}

	return next
}
