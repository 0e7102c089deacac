package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mcpulse-project/mcpulse/internal/config"
	"github.com/mcpulse-project/mcpulse/internal/db"
	"github.com/mcpulse-project/mcpulse/internal/events"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	m.Run()
}

type embedBody struct {
	Embeds []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Color       int    `json:"color"`
	} `json:"embeds"`
}

// capturingServer records every webhook body it receives.
type capturingServer struct {
	mu     sync.Mutex
	bodies []embedBody
	srv    *httptest.Server
}

func newCapturingServer(t *testing.T) *capturingServer {
	t.Helper()
	cs := &capturingServer{}
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body embedBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		cs.mu.Lock()
		cs.bodies = append(cs.bodies, body)
		cs.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *capturingServer) received() []embedBody {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]embedBody, len(cs.bodies))
	copy(out, cs.bodies)
	return out
}

func newTestNotifier(t *testing.T, webhookURL string) (*WebhookNotifier, *db.HistoryDatabase, *events.EventBus, *config.Config) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Alerts.WebhookURL = webhookURL

	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)

	history, err := db.NewHistoryDatabase(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewHistoryDatabase: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	wn := NewWebhookNotifier(cfg, bus, history)
	return wn, history, bus, cfg
}

func TestServerDownPostsEmbedAndRecordsAlert(t *testing.T) {
	cs := newCapturingServer(t)
	_, history, bus, _ := newTestNotifier(t, cs.srv.URL)

	err := bus.EmitSync(context.Background(), events.Event{
		Type:   events.EventServerDown,
		Source: "test",
		Payload: events.ServerTransitionPayload{
			Address:  "mc.example.com",
			Edition:  "java",
			Failures: 3,
			Error:    "connection refused",
		},
	})
	if err != nil {
		t.Fatalf("EmitSync: %v", err)
	}

	bodies := cs.received()
	if len(bodies) != 1 {
		t.Fatalf("webhook calls = %d, want 1", len(bodies))
	}
	embed := bodies[0].Embeds[0]
	if embed.Title != "Server Down" {
		t.Errorf("title = %q, want Server Down", embed.Title)
	}
	if embed.Color != 0xFF0000 {
		t.Errorf("color = %#x, want 0xFF0000", embed.Color)
	}
	if !strings.Contains(embed.Description, "mc.example.com") {
		t.Errorf("description %q missing address", embed.Description)
	}
	if !strings.Contains(embed.Description, "connection refused") {
		t.Errorf("description %q missing error text", embed.Description)
	}

	alerts, err := history.UnacknowledgedAlerts()
	if err != nil {
		t.Fatalf("UnacknowledgedAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("recorded alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Type != "server_down" {
		t.Errorf("alert type = %q, want server_down", alerts[0].Type)
	}
}

func TestRecoveryRespectsNotifyToggle(t *testing.T) {
	cs := newCapturingServer(t)
	_, history, bus, cfg := newTestNotifier(t, cs.srv.URL)
	cfg.Alerts.NotifyOnRecover = false

	err := bus.EmitSync(context.Background(), events.Event{
		Type:   events.EventServerRecovered,
		Source: "test",
		Payload: events.ServerTransitionPayload{
			Address: "mc.example.com",
			Edition: "java",
		},
	})
	if err != nil {
		t.Fatalf("EmitSync: %v", err)
	}

	if got := len(cs.received()); got != 0 {
		t.Fatalf("webhook calls = %d, want 0 when notify_on_recover is off", got)
	}

	// The alert is still recorded for the dashboard.
	alerts, err := history.UnacknowledgedAlerts()
	if err != nil {
		t.Fatalf("UnacknowledgedAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("recorded alerts = %d, want 1", len(alerts))
	}
}

func TestNotifyAdminLevels(t *testing.T) {
	cases := []struct {
		level     string
		wantColor int
	}{
		{"info", 0x00FF00},
		{"warning", 0xFFAA00},
		{"error", 0xFF0000},
		{"critical", 0xFF0000},
	}

	for _, tc := range cases {
		t.Run(tc.level, func(t *testing.T) {
			cs := newCapturingServer(t)
			_, _, bus, _ := newTestNotifier(t, cs.srv.URL)

			err := bus.EmitSync(context.Background(), events.Event{
				Type:   events.EventNotifyAdmin,
				Source: "test",
				Payload: events.NotifyPayload{
					Title:   "Test",
					Message: "message",
					Level:   tc.level,
				},
			})
			if err != nil {
				t.Fatalf("EmitSync: %v", err)
			}

			bodies := cs.received()
			if len(bodies) != 1 {
				t.Fatalf("webhook calls = %d, want 1", len(bodies))
			}
			if got := bodies[0].Embeds[0].Color; got != tc.wantColor {
				t.Errorf("color = %#x, want %#x", got, tc.wantColor)
			}
		})
	}
}

func TestNoWebhookURLIsSilent(t *testing.T) {
	wn, _, _, _ := newTestNotifier(t, "")

	if err := wn.SendAdminNotification(context.Background(), "Title", "msg", "info"); err != nil {
		t.Fatalf("SendAdminNotification with no URL: %v", err)
	}
}

func TestWebhookFailureSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, _, bus, _ := newTestNotifier(t, srv.URL)

	err := bus.EmitSync(context.Background(), events.Event{
		Type:   events.EventNotifyAdmin,
		Source: "test",
		Payload: events.NotifyPayload{Title: "Test", Message: "msg", Level: "error"},
	})
	if err == nil {
		t.Fatal("expected error from failing webhook")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error %q missing status code", err)
	}
}
