// Package events defines event types and payloads for the MCPulse event system.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Monitoring events
	EventPingCompleted    EventType = "ping_completed"
	EventServerDown       EventType = "server_down"
	EventServerRecovered  EventType = "server_recovered"
	EventWatchlistChanged EventType = "watchlist_changed"

	// Notification events
	EventNotifyAdmin EventType = "notify_admin"
	EventNotifyMQTT  EventType = "notify_mqtt"

	// System events
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// MonitorStatus represents the last observed state of a watched server.
type MonitorStatus int

const (
	MonitorStatusUnknown MonitorStatus = iota
	MonitorStatusUp
	MonitorStatusDown
)

// monitorStatusStrings maps MonitorStatus values to their lowercase JSON string representation.
var monitorStatusStrings = map[MonitorStatus]string{
	MonitorStatusUnknown: "unknown",
	MonitorStatusUp:      "up",
	MonitorStatusDown:    "down",
}

// String returns the string representation of MonitorStatus.
func (s MonitorStatus) String() string {
	if str, ok := monitorStatusStrings[s]; ok {
		return str
	}
	return "unknown"
}

// MarshalJSON serializes MonitorStatus as a JSON string (e.g. "up").
func (s MonitorStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// PingCompletedPayload carries the result of a single watchlist check.
type PingCompletedPayload struct {
	Address       string
	Edition       string
	Online        bool
	LatencyMs     float64
	PlayersOnline int
	PlayersMax    int
	Version       string
	Error         string
	CheckedAt     time.Time
}

// ServerTransitionPayload is emitted when a watched server crosses the
// down threshold or comes back up after being marked down.
type ServerTransitionPayload struct {
	Address  string
	Edition  string
	Failures int
	Error    string
}

// WatchlistChangedPayload is emitted when a server is added to or removed
// from the watchlist.
type WatchlistChangedPayload struct {
	Action  string // "added", "removed"
	Address string
	Edition string
}

// NotifyPayload is used for sending admin notifications.
type NotifyPayload struct {
	Title   string
	Message string
	Level   string // "info", "warning", "error"
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string
	Key     string
	Value   interface{}
}
