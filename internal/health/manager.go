// Package health implements periodic self-checks for MCPulse: public IP
// change detection, disk utilization over the data directory, and a
// heartbeat with watchlist statistics.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcpulse-project/mcpulse/internal/config"
	"github.com/mcpulse-project/mcpulse/internal/db"
	"github.com/mcpulse-project/mcpulse/internal/dnscache"
	"github.com/mcpulse-project/mcpulse/internal/events"
	"github.com/mcpulse-project/mcpulse/internal/monitor"
	"github.com/mcpulse-project/mcpulse/internal/util"
)

const (
	publicIPInterval  = 5 * time.Minute
	diskInterval      = 15 * time.Minute
	statsInterval     = 10 * time.Minute
	heartbeatInterval = time.Minute
)

// Manager runs periodic health checks on the host and the service itself.
type Manager struct {
	cfg      *config.Config
	eventBus *events.EventBus
	watch    *monitor.Manager
	history  *db.HistoryDatabase
	cache    *dnscache.Cache

	mu            sync.Mutex
	publicIP      string
	lastDiskLevel string

	startedAt time.Time
}

// NewManager creates a new health check manager.
func NewManager(cfg *config.Config, eventBus *events.EventBus, watch *monitor.Manager,
	history *db.HistoryDatabase, cache *dnscache.Cache) *Manager {
	return &Manager{
		cfg:       cfg,
		eventBus:  eventBus,
		watch:     watch,
		history:   history,
		cache:     cache,
		startedAt: time.Now(),
	}
}

// Start launches all health check goroutines.
func (m *Manager) Start(ctx context.Context) {
	// Launch each health check as a separate goroutine with its own ticker
	checks := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context)
	}{
		{"public_ip", publicIPInterval, m.checkPublicIP},
		{"disk_utilization", diskInterval, m.checkDiskUtilization},
		{"general_stats", statsInterval, m.logGeneralStats},
	}

	for _, check := range checks {
		go func() {
			ticker := time.NewTicker(check.interval)
			defer ticker.Stop()

			// Run immediately on startup
			log.Debug().Str("check", check.name).Msg("running initial health check")
			check.fn(ctx)

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	go m.heartbeatLoop(ctx)

	log.Info().Int("checks", len(checks)).Msg("health check manager started")

	// Block until context is cancelled
	<-ctx.Done()
	log.Info().Msg("health check manager stopped")
}

// PublicIP returns the most recently observed public IP address.
func (m *Manager) PublicIP() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publicIP
}

// Uptime returns how long the service has been running.
func (m *Manager) Uptime() time.Duration {
	return time.Since(m.startedAt)
}

// checkPublicIP detects changes to the public IP address.
func (m *Manager) checkPublicIP(ctx context.Context) {
	ip, err := util.GetPublicIP()
	if err != nil {
		log.Warn().Err(err).Msg("public IP check failed")
		return
	}

	m.mu.Lock()
	previous := m.publicIP
	m.publicIP = ip
	m.mu.Unlock()

	if previous == "" || previous == ip {
		return
	}

	log.Warn().
		Str("old_ip", previous).
		Str("new_ip", ip).
		Msg("public IP changed")

	m.eventBus.Emit(ctx, events.Event{
		Type:   events.EventNotifyAdmin,
		Source: "health_check",
		Payload: events.NotifyPayload{
			Title:   "Public IP Changed",
			Message: fmt.Sprintf("Public IP changed from %s to %s", previous, ip),
			Level:   "warning",
		},
	})
}

// checkDiskUtilization monitors disk space under the data directory and
// alerts when a new threshold is crossed.
func (m *Manager) checkDiskUtilization(ctx context.Context) {
	path := m.cfg.GetHistory().Directory
	if path == "" {
		path = "/"
	}

	usage, err := util.GetDiskUsage(path)
	if err != nil {
		log.Warn().Err(err).Msg("disk utilization check failed")
		return
	}

	log.Debug().
		Float64("used_percent", usage.UsedPercent).
		Str("free", util.FormatBytes(usage.Free)).
		Msg("disk utilization")

	// Alert thresholds: 80%, 90%, 95%, 100%
	var level string
	switch {
	case usage.UsedPercent >= 100:
		level = "critical"
	case usage.UsedPercent >= 95:
		level = "error"
	case usage.UsedPercent >= 90:
		level = "warning"
	case usage.UsedPercent >= 80:
		level = "info"
	}

	m.mu.Lock()
	crossed := level != m.lastDiskLevel
	m.lastDiskLevel = level
	m.mu.Unlock()

	// Only alert when the usage crosses into a different threshold band,
	// not on every check.
	if level == "" || !crossed {
		return
	}

	message := fmt.Sprintf("Disk usage at %.1f%% (%s free of %s total)",
		usage.UsedPercent, util.FormatBytes(usage.Free), util.FormatBytes(usage.Total))

	log.Warn().Str("level", level).Msg(message)

	if m.cfg.GetAlerts().NotifyOnDisk {
		m.eventBus.Emit(ctx, events.Event{
			Type:   events.EventNotifyAdmin,
			Source: "health_check",
			Payload: events.NotifyPayload{
				Title:   "Disk Space Alert",
				Message: message,
				Level:   level,
			},
		})
	}
}

// logGeneralStats reports service-level counters.
func (m *Manager) logGeneralStats(ctx context.Context) {
	rows, err := m.history.ResultCount()
	if err != nil {
		log.Warn().Err(err).Msg("history count failed")
		return
	}

	counts := m.watch.Counts()

	log.Debug().
		Int("watched", counts.Total).
		Int("up", counts.Up).
		Int("down", counts.Down).
		Int("dns_cache_entries", m.cache.Len()).
		Int64("history_rows", rows).
		Msg("service stats")
}

// heartbeatLoop publishes a periodic heartbeat via MQTT.
func (m *Manager) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts := m.watch.Counts()
			m.eventBus.Emit(ctx, events.Event{
				Type:   events.EventNotifyMQTT,
				Source: "heartbeat",
				Payload: map[string]interface{}{
					"type":              "heartbeat",
					"watched":           counts.Total,
					"up":                counts.Up,
					"down":              counts.Down,
					"dns_cache_entries": m.cache.Len(),
					"public_ip":         m.PublicIP(),
					"uptime_seconds":    int64(m.Uptime().Seconds()),
					"timestamp":         time.Now().Unix(),
				},
			})
		}
	}
}
