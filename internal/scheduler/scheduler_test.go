package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mcpulse-project/mcpulse/internal/config"
	"github.com/mcpulse-project/mcpulse/internal/db"
	"github.com/mcpulse-project/mcpulse/internal/events"
	"github.com/mcpulse-project/mcpulse/internal/monitor"
	"github.com/mcpulse-project/mcpulse/internal/ping"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	m.Run()
}

// fakePinger returns canned outcomes and counts invocations.
type fakePinger struct {
	calls    int64
	outcomes []ping.Outcome
}

func (f *fakePinger) PingMany(ctx context.Context, targets []ping.Target) []ping.Outcome {
	atomic.AddInt64(&f.calls, 1)
	return f.outcomes
}

func newTestScheduler(t *testing.T, pinger Pinger) (*Scheduler, *monitor.Manager, *db.HistoryDatabase) {
	t.Helper()

	cfg := config.DefaultConfig()
	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)

	history, err := db.NewHistoryDatabase(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewHistoryDatabase: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	watch := monitor.NewManager(cfg, bus)
	sched := NewScheduler(cfg, bus, pinger, watch, history)
	return sched, watch, history
}

func TestSweepRecordsOutcomes(t *testing.T) {
	pinger := &fakePinger{
		outcomes: []ping.Outcome{
			{
				Target: ping.Target{Address: "mc.example.com", Edition: ping.EditionJava},
				Status: &ping.StatusResult{
					Online:    true,
					LatencyMs: 12.5,
					Java: &ping.JavaStatus{
						Version:       "1.20.4",
						OnlinePlayers: 7,
						MaxPlayers:    20,
					},
				},
			},
			{
				Target: ping.Target{Address: "pe.example.com", Edition: ping.EditionBedrock},
				Status: &ping.StatusResult{
					Online:    true,
					LatencyMs: 31.0,
					Bedrock: &ping.BedrockStatus{
						Version:       "1.20.62",
						OnlinePlayers: "3",
						MaxPlayers:    "10",
					},
				},
			},
		},
	}

	sched, watch, history := newTestScheduler(t, pinger)
	watch.Track("mc.example.com", "java")
	watch.Track("pe.example.com", "bedrock")

	sched.sweep(context.Background())

	if got := atomic.LoadInt64(&pinger.calls); got != 1 {
		t.Fatalf("pinger calls = %d, want 1", got)
	}

	java, ok := watch.Get("mc.example.com", "java")
	if !ok {
		t.Fatal("java server missing from watch registry")
	}
	if java.Status != events.MonitorStatusUp {
		t.Errorf("java status = %v, want up", java.Status)
	}
	if java.PlayersOnline != 7 || java.PlayersMax != 20 {
		t.Errorf("java players = %d/%d, want 7/20", java.PlayersOnline, java.PlayersMax)
	}
	if java.Version != "1.20.4" {
		t.Errorf("java version = %q, want 1.20.4", java.Version)
	}

	bedrock, ok := watch.Get("pe.example.com", "bedrock")
	if !ok {
		t.Fatal("bedrock server missing from watch registry")
	}
	if bedrock.PlayersOnline != 3 || bedrock.PlayersMax != 10 {
		t.Errorf("bedrock players = %d/%d, want 3/10", bedrock.PlayersOnline, bedrock.PlayersMax)
	}

	rows, err := history.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("history rows = %d, want 2", len(rows))
	}
	for _, row := range rows {
		if !row.Online {
			t.Errorf("history row for %s recorded offline", row.Address)
		}
	}
}

func TestSweepReportsFailures(t *testing.T) {
	pinger := &fakePinger{
		outcomes: []ping.Outcome{
			{
				Target: ping.Target{Address: "down.example.com", Edition: ping.EditionJava},
				Err:    errors.New("dial tcp: connection refused"),
			},
		},
	}

	sched, watch, history := newTestScheduler(t, pinger)
	watch.Track("down.example.com", "java")

	sched.sweep(context.Background())

	snap, ok := watch.Get("down.example.com", "java")
	if !ok {
		t.Fatal("server missing from watch registry")
	}
	if snap.ConsecutiveFails != 1 {
		t.Errorf("consecutive fails = %d, want 1", snap.ConsecutiveFails)
	}
	if snap.LastError == "" {
		t.Error("expected last error to be recorded")
	}

	rows, err := history.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("history rows = %d, want 1", len(rows))
	}
	if rows[0].Online {
		t.Error("failed check recorded as online")
	}
	if rows[0].Error == "" {
		t.Error("failed check recorded without error text")
	}
}

func TestSweepSkipsEmptyWatchlist(t *testing.T) {
	pinger := &fakePinger{}
	sched, _, _ := newTestScheduler(t, pinger)

	sched.sweep(context.Background())

	if got := atomic.LoadInt64(&pinger.calls); got != 0 {
		t.Fatalf("pinger calls = %d, want 0", got)
	}
}

func TestOutcomePayloadNilStatus(t *testing.T) {
	payload := outcomePayload(ping.Outcome{
		Target: ping.Target{Address: "odd.example.com", Edition: ping.EditionJava},
	})
	if payload.Online {
		t.Error("nil status should not be online")
	}
	if payload.Error == "" {
		t.Error("nil status should carry an error message")
	}
}

func TestCalculateNextPruneTime(t *testing.T) {
	cases := []struct {
		name        string
		cleanupTime string
		wantHour    int
		wantMinute  int
	}{
		{"standard", "04:00", 4, 0},
		{"evening", "23:30", 23, 30},
		{"malformed", "bogus", 4, 0},
		{"empty", "", 4, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.History.CleanupTime = tc.cleanupTime

			sched := &Scheduler{cfg: cfg}
			next := sched.calculateNextPruneTime()

			if next.Hour() != tc.wantHour || next.Minute() != tc.wantMinute {
				t.Errorf("next = %02d:%02d, want %02d:%02d",
					next.Hour(), next.Minute(), tc.wantHour, tc.wantMinute)
			}
			if next.Before(time.Now().Add(-time.Minute)) {
				t.Errorf("next prune time %v is in the past", next)
			}
		})
	}
}
