package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mcpulse-project/mcpulse/internal/config"
	"github.com/mcpulse-project/mcpulse/internal/db"
	"github.com/mcpulse-project/mcpulse/internal/dnscache"
	"github.com/mcpulse-project/mcpulse/internal/events"
	"github.com/mcpulse-project/mcpulse/internal/monitor"
	"github.com/mcpulse-project/mcpulse/internal/ping"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	gin.SetMode(gin.TestMode)
	m.Run()
}

// fakePinger answers every target as online with a fixed latency, except
// addresses prefixed "down-", which fail with a timeout.
type fakePinger struct{}

func (fakePinger) Ping(ctx context.Context, target ping.Target) ping.Outcome {
	if strings.HasPrefix(target.Address, "down-") {
		return ping.Outcome{Target: target, Err: &ping.Error{
			Kind: ping.KindTimeout, Op: "connect", Target: target.Address,
		}}
	}
	return ping.Outcome{Target: target, Status: &ping.StatusResult{
		Online:    true,
		IP:        "192.0.2.10",
		Port:      target.Edition.DefaultPort(),
		Hostname:  target.Address,
		LatencyMs: 12.5,
		Java:      &ping.JavaStatus{Version: "1.20.4", OnlinePlayers: 3, MaxPlayers: 20, Description: "test"},
	}}
}

func (f fakePinger) PingMany(ctx context.Context, targets []ping.Target) []ping.Outcome {
	outcomes := make([]ping.Outcome, 0, len(targets))
	for _, target := range targets {
		outcomes = append(outcomes, f.Ping(ctx, target))
	}
	return outcomes
}

// newTestServer builds a router backed by temp databases, a fake query
// engine, and auth disabled.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)

	history, err := db.NewHistoryDatabase(dir + "/history.db")
	if err != nil {
		t.Fatalf("history db: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	auth, err := db.NewAuthDatabase(dir + "/auth.db")
	if err != nil {
		t.Fatalf("auth db: %v", err)
	}
	t.Cleanup(func() { auth.Close() })

	watch := monitor.NewManager(cfg, bus)

	s := NewServer(cfg, bus, watch, fakePinger{})
	s.SetDependencies(history, auth, dnscache.New(0), func(timeout time.Duration, maxParallel int) Pinger {
		return fakePinger{}
	})
	s.router = s.buildRouter()
	t.Cleanup(s.jobs.stop)
	return s
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	body := make(map[string]interface{})
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestPublicPing(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "GET", "/api/public/ping", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["service"] != "mcpulse" {
		t.Fatalf("unexpected service: %v", body["service"])
	}
}

func TestPublicStatus(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name   string
		path   string
		code   int
		online bool
	}{
		{"online java", "/api/public/status?address=mc.example.com", http.StatusOK, true},
		{"explicit edition", "/api/public/status?address=mc.example.com&edition=bedrock", http.StatusOK, true},
		{"unreachable", "/api/public/status?address=down-host", http.StatusOK, false},
		{"missing address", "/api/public/status", http.StatusBadRequest, false},
		{"bad edition", "/api/public/status?address=x&edition=pocket", http.StatusBadRequest, false},
	}

	for _, tc := range cases {
		rec := doRequest(s, "GET", tc.path, "")
		if rec.Code != tc.code {
			t.Fatalf("%s: status %d, want %d", tc.name, rec.Code, tc.code)
		}
		if rec.Code != http.StatusOK {
			continue
		}
		body := decodeBody(t, rec)
		if tc.online && body["status"] == nil {
			t.Fatalf("%s: expected status payload: %v", tc.name, body)
		}
		if !tc.online && body["error"] == nil {
			t.Fatalf("%s: expected error payload: %v", tc.name, body)
		}
	}
}

func TestControlQuery(t *testing.T) {
	s := newTestServer(t)

	body := `{"targets":[{"address":"a.example.com"},{"address":"down-b","edition":"bedrock"}]}`
	rec := doRequest(s, "POST", "/api/control/query", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeBody(t, rec)
	if got := resp["count"].(float64); got != 2 {
		t.Fatalf("expected 2 outcomes, got %v", got)
	}
}

func TestControlQueryRejectsBadBody(t *testing.T) {
	s := newTestServer(t)

	for _, body := range []string{
		``,
		`{}`,
		`{"targets":[]}`,
		`{"targets":[{"edition":"java"}]}`,
		`{"targets":[{"address":"x","edition":"pocket"}]}`,
	} {
		rec := doRequest(s, "POST", "/api/control/query", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status %d, want 400", body, rec.Code)
		}
	}
}

func TestControlJobLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "POST", "/api/control/jobs", `{"targets":[{"address":"a.example.com"}]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	jobID := decodeBody(t, rec)["job_id"].(string)

	// The fake engine finishes immediately; poll until completed.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = doRequest(s, "GET", "/api/control/jobs/"+jobID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("get status %d", rec.Code)
		}
		if decodeBody(t, rec)["status"] == string(JobStatusCompleted) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed: %s", rec.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}

	job := decodeBody(t, rec)
	if outcomes := job["outcomes"].([]interface{}); len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}

	rec = doRequest(s, "DELETE", "/api/control/jobs/"+jobID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d", rec.Code)
	}
	rec = doRequest(s, "GET", "/api/control/jobs/"+jobID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestControlWatchlist(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "POST", "/api/control/watchlist?address=mc.example.com&edition=java", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("add status %d: %s", rec.Code, rec.Body.String())
	}

	// Duplicate add conflicts.
	rec = doRequest(s, "POST", "/api/control/watchlist?address=mc.example.com&edition=java", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate add status %d", rec.Code)
	}

	rec = doRequest(s, "GET", "/api/monitor/watchlist", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	if total := decodeBody(t, rec)["total"].(float64); total != 1 {
		t.Fatalf("expected 1 watched server, got %v", total)
	}

	// The entry is persisted for the next start.
	entries, err := s.history.Watchlist()
	if err != nil || len(entries) != 1 {
		t.Fatalf("persisted watchlist: %v, %v", entries, err)
	}

	rec = doRequest(s, "DELETE", "/api/control/watchlist?address=mc.example.com&edition=java", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("remove status %d", rec.Code)
	}
	rec = doRequest(s, "DELETE", "/api/control/watchlist?address=mc.example.com&edition=java", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second remove status %d", rec.Code)
	}
}

func TestControlFlushDNS(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "POST", "/api/control/flush_dns", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if status := decodeBody(t, rec)["status"]; status != "flushed" {
		t.Fatalf("unexpected status: %v", status)
	}
}

func TestConfigureSetPing(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "POST", "/api/configure/set_ping",
		`{"timeout_seconds":5,"max_parallel":25,"dns_cache_ttl_seconds":120}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	if got := s.cfg.GetPing().MaxParallel; got != 25 {
		t.Fatalf("max_parallel not applied: %d", got)
	}
}

func TestConfigureTokens(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "POST", "/api/configure/tokens", `{"name":"ci","role":"operator"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	token := decodeBody(t, rec)["token"].(string)
	if len(token) != 64 {
		t.Fatalf("token length %d, want 64", len(token))
	}

	rec = doRequest(s, "GET", "/api/configure/tokens", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	tokens := decodeBody(t, rec)["tokens"].([]interface{})
	if len(tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(tokens))
	}
	id := int(tokens[0].(map[string]interface{})["id"].(float64))

	rec = doRequest(s, "DELETE", fmt.Sprintf("/api/configure/tokens/%d", id), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d", rec.Code)
	}
}

func TestAuthRequiredWhenEnabled(t *testing.T) {
	s := newTestServer(t)

	security := s.cfg.GetSecurity()
	security.AuthDisabled = false
	s.cfg.Security = security

	rec := doRequest(s, "GET", "/api/monitor/watchlist", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d, want 401", rec.Code)
	}

	// Viewer tokens may monitor but not control.
	token, err := s.auth.CreateToken("viewer-test", "viewer")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/monitor/watchlist", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("viewer monitor: status %d, want 200", rec.Code)
	}

	req = httptest.NewRequest("POST", "/api/control/flush_dns", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer control: status %d, want 403", rec.Code)
	}

	// Public endpoints stay open.
	rec = doRequest(s, "GET", "/api/public/ping", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("public with auth enabled: status %d", rec.Code)
	}
}

func TestUnknownAPIRouteIs404(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "GET", "/api/no_such_thing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "endpoint not found" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}
