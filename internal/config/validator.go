package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateCore(cfg, result)
	validateIntegrations(cfg, result)

	return result
}

// validateCore checks the ping engine, monitor, and history sections.
func validateCore(cfg *Config, result *ValidationResult) {
	if cfg.Ping.TimeoutSeconds < 1 {
		result.AddError("ping.timeout_seconds", "timeout must be at least 1 second")
	} else if cfg.Ping.TimeoutSeconds > 60 {
		result.AddWarning("ping.timeout_seconds",
			fmt.Sprintf("timeout of %ds will make watchlist sweeps very slow", cfg.Ping.TimeoutSeconds))
	}

	if cfg.Ping.MaxParallel < 1 {
		result.AddError("ping.max_parallel", "must allow at least 1 concurrent query")
	} else if cfg.Ping.MaxParallel > 100 {
		result.AddWarning("ping.max_parallel",
			fmt.Sprintf("high concurrency (%d) may exhaust file descriptors", cfg.Ping.MaxParallel))
	}

	if cfg.Ping.DNSCacheTTLSeconds < 0 {
		result.AddError("ping.dns_cache_ttl_seconds", "TTL cannot be negative")
	} else if cfg.Ping.DNSCacheTTLSeconds == 0 {
		result.AddWarning("ping.dns_cache_ttl_seconds", "TTL not set, default of 300s will be used")
	}

	if cfg.Monitor.Enabled {
		if cfg.Monitor.IntervalSeconds < 1 {
			result.AddError("monitor.interval_seconds", "interval must be at least 1 second")
		} else if cfg.Monitor.IntervalSeconds < 10 {
			result.AddWarning("monitor.interval_seconds",
				"interval less than 10s may cause excessive traffic to watched servers")
		}
		if cfg.Monitor.DownThreshold < 1 {
			result.AddError("monitor.down_threshold", "threshold must be at least 1 failure")
		}
	}

	for i, s := range cfg.Monitor.Servers {
		field := fmt.Sprintf("monitor.servers[%d]", i)
		if strings.TrimSpace(s.Address) == "" {
			result.AddError(field, "server address is required")
		}
		switch strings.ToLower(strings.TrimSpace(s.Edition)) {
		case "java", "bedrock":
		default:
			result.AddError(field, fmt.Sprintf("unknown edition %q (must be java or bedrock)", s.Edition))
		}
	}

	if strings.TrimSpace(cfg.History.Directory) == "" {
		result.AddError("history.directory", "history directory is required")
	}
	if cfg.History.RetentionDays < 1 {
		result.AddError("history.retention_days", "retention days must be at least 1")
	}
	if cfg.History.CleanupTime != "" {
		if _, err := time.Parse("15:04", cfg.History.CleanupTime); err != nil {
			result.AddError("history.cleanup_time",
				fmt.Sprintf("invalid cleanup time %q (expected HH:MM)", cfg.History.CleanupTime))
		}
	}
}

// validateIntegrations checks the API, MQTT, alerts, security, and logging
// sections.
func validateIntegrations(cfg *Config, result *ValidationResult) {
	if cfg.API.Enabled {
		validatePort(cfg.API.Port, "api.port", result)
	}

	if cfg.MQTT.Enabled {
		if strings.TrimSpace(cfg.MQTT.BrokerURL) == "" {
			result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if cfg.MQTT.Port < 1 || cfg.MQTT.Port > 65535 {
			result.AddError("mqtt.port", "invalid MQTT port")
		}
		if cfg.MQTT.UseTLS && cfg.MQTT.CertFile != "" {
			if _, err := os.Stat(cfg.MQTT.CertFile); os.IsNotExist(err) {
				result.AddWarning("mqtt.cert_file",
					fmt.Sprintf("certificate file does not exist: %s", cfg.MQTT.CertFile))
			}
		}
	}

	if cfg.Alerts.WebhookURL != "" {
		if !strings.HasPrefix(cfg.Alerts.WebhookURL, "http://") &&
			!strings.HasPrefix(cfg.Alerts.WebhookURL, "https://") {
			result.AddWarning("alerts.webhook_url", "webhook URL does not look like an HTTP(S) endpoint")
		}
	}

	if cfg.Security.TLSEnabled {
		if strings.TrimSpace(cfg.Security.TLSCertFile) == "" {
			result.AddError("security.tls_cert_file",
				"TLS certificate file is required when TLS is enabled")
		}
		if strings.TrimSpace(cfg.Security.TLSKeyFile) == "" {
			result.AddError("security.tls_key_file",
				"TLS key file is required when TLS is enabled")
		}
	}

	if cfg.Security.RateLimitRPS < 1 {
		result.AddWarning("security.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}

	switch cfg.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		result.AddError("logging.level",
			fmt.Sprintf("unknown log level %q (expected trace, debug, info, warn, or error)", cfg.Logging.Level))
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
