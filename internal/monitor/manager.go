// Package monitor tracks the observed state of every watched server and
// raises events when a server crosses the down threshold or recovers.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcpulse-project/mcpulse/internal/config"
	"github.com/mcpulse-project/mcpulse/internal/events"
)

// watchState is the mutable per-server record. All access goes through
// the Manager mutex.
type watchState struct {
	address          string
	edition          string
	status           events.MonitorStatus
	consecutiveFails int
	latencyMs        float64
	playersOnline    int
	playersMax       int
	version          string
	lastError        string
	lastChecked      time.Time
	lastOnline       time.Time
	checksTotal      int64
	checksFailed     int64
	addedAt          time.Time
}

// Snapshot is a point-in-time copy of one watched server's state.
type Snapshot struct {
	Address          string               `json:"address"`
	Edition          string               `json:"edition"`
	Status           events.MonitorStatus `json:"status"`
	ConsecutiveFails int                  `json:"consecutive_fails"`
	LatencyMs        float64              `json:"latency_ms"`
	PlayersOnline    int                  `json:"players_online"`
	PlayersMax       int                  `json:"players_max"`
	Version          string               `json:"version,omitempty"`
	LastError        string               `json:"last_error,omitempty"`
	LastChecked      time.Time            `json:"last_checked"`
	LastOnline       time.Time            `json:"last_online"`
	ChecksTotal      int64                `json:"checks_total"`
	ChecksFailed     int64                `json:"checks_failed"`
	AddedAt          time.Time            `json:"added_at"`
}

// Counts summarizes the watchlist for the status endpoint.
type Counts struct {
	Total   int `json:"total"`
	Up      int `json:"up"`
	Down    int `json:"down"`
	Unknown int `json:"unknown"`
}

// Manager is the central registry of watched servers.
type Manager struct {
	mu sync.RWMutex

	cfg      *config.Config
	eventBus *events.EventBus

	// Watch states indexed by edition+"/"+address
	servers map[string]*watchState

	downThreshold int
}

// NewManager creates and initializes the watch manager.
func NewManager(cfg *config.Config, eventBus *events.EventBus) *Manager {
	threshold := cfg.GetMonitor().DownThreshold
	if threshold < 1 {
		threshold = 1
	}

	m := &Manager{
		cfg:           cfg,
		eventBus:      eventBus,
		servers:       make(map[string]*watchState),
		downThreshold: threshold,
	}

	m.subscribeEvents()

	return m
}

// subscribeEvents registers all event handlers on the EventBus.
func (m *Manager) subscribeEvents() {
	bus := m.eventBus

	bus.Subscribe(events.EventPingCompleted, "monitor.pingCompleted", m.onPingCompleted)
	bus.Subscribe(events.EventConfigChanged, "monitor.configChanged", m.onConfigChanged)

	log.Debug().Msg("monitor event subscriptions registered")
}

func watchKey(address, edition string) string {
	return edition + "/" + address
}

// Track adds a server to the watch registry. It reports whether the
// registry changed.
func (m *Manager) Track(address, edition string) bool {
	m.mu.Lock()
	key := watchKey(address, edition)
	if _, exists := m.servers[key]; exists {
		m.mu.Unlock()
		return false
	}
	m.servers[key] = &watchState{
		address: address,
		edition: edition,
		status:  events.MonitorStatusUnknown,
		addedAt: time.Now(),
	}
	m.mu.Unlock()

	log.Info().Str("address", address).Str("edition", edition).Msg("server added to watchlist")

	m.eventBus.Emit(context.Background(), events.Event{
		Type:   events.EventWatchlistChanged,
		Source: "monitor",
		Payload: events.WatchlistChangedPayload{
			Action:  "added",
			Address: address,
			Edition: edition,
		},
	})
	return true
}

// Untrack removes a server from the watch registry. It reports whether
// the registry changed.
func (m *Manager) Untrack(address, edition string) bool {
	m.mu.Lock()
	key := watchKey(address, edition)
	if _, exists := m.servers[key]; !exists {
		m.mu.Unlock()
		return false
	}
	delete(m.servers, key)
	m.mu.Unlock()

	log.Info().Str("address", address).Str("edition", edition).Msg("server removed from watchlist")

	m.eventBus.Emit(context.Background(), events.Event{
		Type:   events.EventWatchlistChanged,
		Source: "monitor",
		Payload: events.WatchlistChangedPayload{
			Action:  "removed",
			Address: address,
			Edition: edition,
		},
	})
	return true
}

// RecordOutcome folds one check result into the watch state and emits
// down/recovery events when the server crosses the threshold.
func (m *Manager) RecordOutcome(p events.PingCompletedPayload) {
	m.mu.Lock()

	state, exists := m.servers[watchKey(p.Address, p.Edition)]
	if !exists {
		// One-off queries are not tracked.
		m.mu.Unlock()
		return
	}

	checkedAt := p.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now()
	}

	state.checksTotal++
	state.lastChecked = checkedAt

	var transition events.EventType
	if p.Online {
		wasDown := state.status == events.MonitorStatusDown
		state.consecutiveFails = 0
		state.status = events.MonitorStatusUp
		state.latencyMs = p.LatencyMs
		state.playersOnline = p.PlayersOnline
		state.playersMax = p.PlayersMax
		if p.Version != "" {
			state.version = p.Version
		}
		state.lastError = ""
		state.lastOnline = checkedAt
		if wasDown {
			transition = events.EventServerRecovered
		}
	} else {
		state.checksFailed++
		state.consecutiveFails++
		state.lastError = p.Error
		if state.status != events.MonitorStatusDown && state.consecutiveFails >= m.downThreshold {
			state.status = events.MonitorStatusDown
			transition = events.EventServerDown
		}
	}

	payload := events.ServerTransitionPayload{
		Address:  state.address,
		Edition:  state.edition,
		Failures: state.consecutiveFails,
		Error:    state.lastError,
	}
	m.mu.Unlock()

	if transition == "" {
		return
	}

	switch transition {
	case events.EventServerDown:
		log.Warn().
			Str("address", payload.Address).
			Str("edition", payload.Edition).
			Int("failures", payload.Failures).
			Msg("server marked down")
	case events.EventServerRecovered:
		log.Info().
			Str("address", payload.Address).
			Str("edition", payload.Edition).
			Msg("server recovered")
	}

	m.eventBus.Emit(context.Background(), events.Event{
		Type:    transition,
		Source:  "monitor",
		Payload: payload,
	})
}

// Get returns the snapshot for one watched server.
func (m *Manager) Get(address, edition string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.servers[watchKey(address, edition)]
	if !ok {
		return Snapshot{}, false
	}
	return state.snapshot(), true
}

// Snapshots returns the state of every watched server, oldest first.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(m.servers))
	for _, state := range m.servers {
		snaps = append(snaps, state.snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].AddedAt.Equal(snaps[j].AddedAt) {
			return snaps[i].Address < snaps[j].Address
		}
		return snaps[i].AddedAt.Before(snaps[j].AddedAt)
	})
	return snaps
}

// Counts returns watchlist totals grouped by status.
func (m *Manager) Counts() Counts {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := Counts{Total: len(m.servers)}
	for _, state := range m.servers {
		switch state.status {
		case events.MonitorStatusUp:
			counts.Up++
		case events.MonitorStatusDown:
			counts.Down++
		default:
			counts.Unknown++
		}
	}
	return counts
}

func (s *watchState) snapshot() Snapshot {
	return Snapshot{
		Address:          s.address,
		Edition:          s.edition,
		Status:           s.status,
		ConsecutiveFails: s.consecutiveFails,
		LatencyMs:        s.latencyMs,
		PlayersOnline:    s.playersOnline,
		PlayersMax:       s.playersMax,
		Version:          s.version,
		LastError:        s.lastError,
		LastChecked:      s.lastChecked,
		LastOnline:       s.lastOnline,
		ChecksTotal:      s.checksTotal,
		ChecksFailed:     s.checksFailed,
		AddedAt:          s.addedAt,
	}
}

// --- Event Handlers ---

func (m *Manager) onPingCompleted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PingCompletedPayload)
	if !ok {
		return nil
	}
	m.RecordOutcome(payload)
	return nil
}

func (m *Manager) onConfigChanged(ctx context.Context, event events.Event) error {
	threshold := m.cfg.GetMonitor().DownThreshold
	if threshold < 1 {
		threshold = 1
	}

	m.mu.Lock()
	changed := m.downThreshold != threshold
	m.downThreshold = threshold
	m.mu.Unlock()

	if changed {
		log.Info().Int("threshold", threshold).Msg("down threshold updated")
	}
	return nil
}
