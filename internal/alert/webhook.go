// Package alert delivers admin notifications. Transitions and admin
// notices are recorded in the alert history and, when a webhook URL is
// configured, posted as Discord-compatible embeds.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcpulse-project/mcpulse/internal/config"
	"github.com/mcpulse-project/mcpulse/internal/db"
	"github.com/mcpulse-project/mcpulse/internal/events"
)

// WebhookNotifier listens for notification events and forwards them to
// the configured webhook endpoint.
type WebhookNotifier struct {
	cfg      *config.Config
	eventBus *events.EventBus
	history  *db.HistoryDatabase
	client   *http.Client
}

// NewWebhookNotifier creates the notifier and subscribes it to the
// notification events.
func NewWebhookNotifier(cfg *config.Config, eventBus *events.EventBus, history *db.HistoryDatabase) *WebhookNotifier {
	wn := &WebhookNotifier{
		cfg:      cfg,
		eventBus: eventBus,
		history:  history,
		client:   &http.Client{Timeout: 10 * time.Second},
	}

	eventBus.Subscribe(events.EventNotifyAdmin, "webhook.notify", wn.onNotifyAdmin)
	eventBus.Subscribe(events.EventServerDown, "webhook.serverDown", wn.onServerDown)
	eventBus.Subscribe(events.EventServerRecovered, "webhook.serverRecovered", wn.onServerRecovered)

	return wn
}

// SendAdminNotification posts a notification to the configured webhook.
// It is a no-op when no webhook URL is set.
func (wn *WebhookNotifier) SendAdminNotification(ctx context.Context, title, message, level string) error {
	webhookURL := wn.cfg.GetAlerts().WebhookURL
	if webhookURL == "" {
		log.Debug().Str("title", title).Msg("no webhook URL configured, notification skipped")
		return nil
	}

	return wn.sendWebhook(ctx, webhookURL, title, message, level)
}

// sendWebhook sends a Discord-compatible embed to the webhook endpoint.
func (wn *WebhookNotifier) sendWebhook(ctx context.Context, webhookURL, title, message, level string) error {
	// Color based on level
	var color int
	switch level {
	case "error", "critical":
		color = 0xFF0000 // Red
	case "warning":
		color = 0xFFAA00 // Orange
	default:
		color = 0x00FF00 // Green
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       title,
				"description": message,
				"color":       color,
				"timestamp":   time.Now().Format(time.RFC3339),
				"footer": map[string]string{
					"text": "MCPulse Server Monitor",
				},
			},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := wn.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	log.Debug().Str("title", title).Msg("webhook notification sent")
	return nil
}

// recordAlert stores the alert so it shows up in the dashboard even when
// no webhook is configured.
func (wn *WebhookNotifier) recordAlert(alertType, level, message string) {
	if err := wn.history.CreateAlert(alertType, level, message); err != nil {
		log.Warn().Err(err).Msg("failed to record alert")
	}
}

// onNotifyAdmin handles EventNotifyAdmin events.
func (wn *WebhookNotifier) onNotifyAdmin(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.NotifyPayload)
	if !ok {
		return nil
	}

	wn.recordAlert("admin", payload.Level, fmt.Sprintf("%s: %s", payload.Title, payload.Message))
	return wn.SendAdminNotification(ctx, payload.Title, payload.Message, payload.Level)
}

// onServerDown handles EventServerDown events.
func (wn *WebhookNotifier) onServerDown(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ServerTransitionPayload)
	if !ok {
		return nil
	}

	message := fmt.Sprintf("%s (%s) is down after %d consecutive failed checks",
		payload.Address, payload.Edition, payload.Failures)
	if payload.Error != "" {
		message += ": " + payload.Error
	}

	wn.recordAlert("server_down", "error", message)

	if !wn.cfg.GetAlerts().NotifyOnDown {
		return nil
	}
	return wn.SendAdminNotification(ctx, "Server Down", message, "error")
}

// onServerRecovered handles EventServerRecovered events.
func (wn *WebhookNotifier) onServerRecovered(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ServerTransitionPayload)
	if !ok {
		return nil
	}

	message := fmt.Sprintf("%s (%s) is reachable again", payload.Address, payload.Edition)

	wn.recordAlert("server_recovered", "info", message)

	if !wn.cfg.GetAlerts().NotifyOnRecover {
		return nil
	}
	return wn.SendAdminNotification(ctx, "Server Recovered", message, "info")
}
