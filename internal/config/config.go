// Package config handles configuration loading, validation, and persistence
// for the MCPulse monitoring service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 25590
	DefaultMQTTPort   = 8883
	DefaultHistoryDir = "data"
)

// Config is the root configuration structure for MCPulse.
type Config struct {
	mu   sync.RWMutex
	path string

	Ping          PingConfig     `json:"ping"`
	Monitor       MonitorConfig  `json:"monitor"`
	History       HistoryConfig  `json:"history"`
	API           APIConfig      `json:"api"`
	MQTT          MQTTConfig     `json:"mqtt"`
	Alerts        AlertsConfig   `json:"alerts"`
	Security      SecurityConfig `json:"security"`
	Logging       LoggingConfig  `json:"logging"`
	SetupComplete bool           `json:"setup_complete"`
}

// PingConfig holds query engine settings.
type PingConfig struct {
	TimeoutSeconds     int `json:"timeout_seconds"`
	MaxParallel        int `json:"max_parallel"`
	DNSCacheTTLSeconds int `json:"dns_cache_ttl_seconds"`
}

// WatchedServer identifies one server on the watchlist.
type WatchedServer struct {
	Address string `json:"address"`
	Edition string `json:"edition"`
}

// MonitorConfig holds watchlist polling settings.
type MonitorConfig struct {
	Enabled         bool            `json:"enabled"`
	IntervalSeconds int             `json:"interval_seconds"`
	DownThreshold   int             `json:"down_threshold"`
	Servers         []WatchedServer `json:"servers"`
}

// HistoryConfig holds result retention settings.
type HistoryConfig struct {
	Directory     string `json:"directory"`
	RetentionDays int    `json:"retention_days"`
	CleanupTime   string `json:"cleanup_time"`
}

// APIConfig holds REST API settings.
type APIConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
}

// AlertsConfig holds webhook notification settings.
type AlertsConfig struct {
	WebhookURL      string `json:"webhook_url"`
	NotifyOnDown    bool   `json:"notify_on_down"`
	NotifyOnRecover bool   `json:"notify_on_recover"`
	NotifyOnDisk    bool   `json:"notify_on_disk"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSCertFile    string   `json:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	IPWhitelist    []string `json:"ip_whitelist"`
	AuthDisabled   bool     `json:"auth_disabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Ping: PingConfig{
			TimeoutSeconds:     10,
			MaxParallel:        10,
			DNSCacheTTLSeconds: 300,
		},
		Monitor: MonitorConfig{
			Enabled:         true,
			IntervalSeconds: 60,
			DownThreshold:   3,
		},
		History: HistoryConfig{
			Directory:     DefaultHistoryDir,
			RetentionDays: 30,
			CleanupTime:   "04:00",
		},
		API: APIConfig{
			Enabled: true,
			Port:    DefaultAPIPort,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Port:    DefaultMQTTPort,
			UseTLS:  true,
		},
		Alerts: AlertsConfig{
			NotifyOnDown:    true,
			NotifyOnRecover: true,
			NotifyOnDisk:    true,
		},
		Security: SecurityConfig{
			RateLimitRPS: 100,
			AuthDisabled: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save config to persist any new default fields added in code updates.
	// This ensures config.json always reflects the complete set of options.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Ensure config directory exists
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetPing returns a copy of the ping configuration.
func (c *Config) GetPing() PingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Ping
}

// SetPing updates the ping configuration.
func (c *Config) SetPing(data PingConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Ping = data
}

// GetMonitor returns a copy of the monitor configuration.
func (c *Config) GetMonitor() MonitorConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cp := c.Monitor
	cp.Servers = append([]WatchedServer(nil), c.Monitor.Servers...)
	return cp
}

// SetMonitor updates the monitor configuration.
func (c *Config) SetMonitor(data MonitorConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Monitor = data
}

// GetHistory returns a copy of the history configuration.
func (c *Config) GetHistory() HistoryConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.History
}

// GetAPI returns a copy of the API configuration.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.API
}

// GetMQTT returns a copy of the MQTT configuration.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// GetAlerts returns a copy of the alerts configuration.
func (c *Config) GetAlerts() AlertsConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Alerts
}

// GetSecurity returns a copy of the security configuration.
func (c *Config) GetSecurity() SecurityConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Security
}

// GetLogging returns a copy of the logging configuration.
func (c *Config) GetLogging() LoggingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging
}

// UpdatePingField updates a specific field in the ping configuration by
// its JSON key.
func (c *Config) UpdatePingField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return updateField(&c.Ping, key, value)
}

// UpdateMonitorField updates a specific field in the monitor configuration
// by its JSON key.
func (c *Config) UpdateMonitorField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return updateField(&c.Monitor, key, value)
}

// updateField round-trips a section through JSON to set one key.
func updateField(section interface{}, key string, value interface{}) error {
	data, _ := json.Marshal(section)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	if _, ok := m[key]; !ok {
		return fmt.Errorf("unknown config field %q", key)
	}
	m[key] = value

	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, section); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}

	return nil
}

// AddWatchedServer appends a server to the monitor watchlist if it is not
// already present. It reports whether the list changed.
func (c *Config) AddWatchedServer(address, edition string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.Monitor.Servers {
		if s.Address == address && s.Edition == edition {
			return false
		}
	}
	c.Monitor.Servers = append(c.Monitor.Servers, WatchedServer{Address: address, Edition: edition})
	return true
}

// RemoveWatchedServer removes a server from the monitor watchlist. It
// reports whether the list changed.
func (c *Config) RemoveWatchedServer(address, edition string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.Monitor.Servers {
		if s.Address == address && s.Edition == edition {
			c.Monitor.Servers = append(c.Monitor.Servers[:i], c.Monitor.Servers[i+1:]...)
			return true
		}
	}
	return false
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun returns true if the configuration needs initial setup.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.SetupComplete
}

// MarkSetupComplete records that the setup wizard has finished.
func (c *Config) MarkSetupComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetupComplete = true
}
