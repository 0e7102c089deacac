package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard guides the user through first-time configuration.
func RunSetupWizard(cfg *Config) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║          MCPulse - First Run Setup           ║")
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Println("║  Welcome! Let's configure your monitor.      ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("── Watched Servers ──")
	fmt.Println("  Add the servers MCPulse should keep an eye on.")
	fmt.Println("  Leave the address blank when you are done.")
	fmt.Println()

	for {
		address := promptString(reader, "Server address (host or host:port)", "")
		if address == "" {
			break
		}
		edition := strings.ToLower(promptString(reader, "Edition (java/bedrock)", "java"))
		if edition != "java" && edition != "bedrock" {
			fmt.Printf("    Unknown edition %q, using java\n", edition)
			edition = "java"
		}
		if !cfg.AddWatchedServer(address, edition) {
			fmt.Println("    Already on the watchlist, skipping")
		}
	}

	fmt.Println()
	fmt.Println("── Monitoring ──")

	cfg.Monitor.Enabled = promptBool(reader, "Enable background monitoring", cfg.Monitor.Enabled)
	if cfg.Monitor.Enabled {
		cfg.Monitor.IntervalSeconds = promptInt(reader, "Check interval in seconds", cfg.Monitor.IntervalSeconds)
		cfg.Monitor.DownThreshold = promptInt(reader, "Consecutive failures before a server is marked down", cfg.Monitor.DownThreshold)
	}

	fmt.Println()
	fmt.Println("── Query Engine ──")

	cfg.Ping.TimeoutSeconds = promptInt(reader, "Query timeout in seconds", cfg.Ping.TimeoutSeconds)
	cfg.Ping.MaxParallel = promptInt(reader, "Maximum parallel queries", cfg.Ping.MaxParallel)

	fmt.Println()
	fmt.Println("── REST API ──")

	cfg.API.Enabled = promptBool(reader, "Enable REST API and dashboard", cfg.API.Enabled)
	if cfg.API.Enabled {
		cfg.API.Port = promptInt(reader, "API port", cfg.API.Port)
		if !IsPortAvailable(cfg.API.Port) {
			fmt.Printf("    Note: port %d is currently in use\n", cfg.API.Port)
		}
	}

	fmt.Println()
	fmt.Println("── Alerts ──")

	cfg.Alerts.WebhookURL = promptString(reader,
		"Webhook URL for down/recovery alerts (leave blank to disable)", cfg.Alerts.WebhookURL)

	fmt.Println()
	fmt.Println("── MQTT Telemetry ──")

	cfg.MQTT.Enabled = promptBool(reader, "Enable MQTT telemetry", cfg.MQTT.Enabled)
	if cfg.MQTT.Enabled {
		cfg.MQTT.BrokerURL = promptString(reader, "MQTT broker host", cfg.MQTT.BrokerURL)
		cfg.MQTT.Port = promptInt(reader, "MQTT broker port", cfg.MQTT.Port)
		cfg.MQTT.UseTLS = promptBool(reader, "Use TLS for MQTT", cfg.MQTT.UseTLS)
	}

	// Validate before saving
	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Println("\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Printf("  - [%s] %s\n", e.Field, e.Message)
		}
		retry := promptString(reader, "Would you like to try again? (yes/no)", "yes")
		if strings.ToLower(retry) == "yes" {
			return RunSetupWizard(cfg)
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	cfg.MarkSetupComplete()

	// Save configuration
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Println()
	fmt.Println("✓ Configuration saved successfully!")
	fmt.Println("  MCPulse will now start with your configuration.")
	fmt.Println()

	return nil
}

func promptString(reader *bufio.Reader, prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Printf("  %s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func promptInt(reader *bufio.Reader, prompt string, defaultVal int) int {
	fmt.Printf("  %s [%d]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Printf("    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Printf("  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
