package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mcpulse-project/mcpulse/internal/config"
	"github.com/mcpulse-project/mcpulse/internal/events"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	m.Run()
}

func newTestManager(t *testing.T) (*Manager, *events.EventBus) {
	t.Helper()
	cfg := config.DefaultConfig() // down threshold 3
	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)
	return NewManager(cfg, bus), bus
}

// collect subscribes to an event type and returns a channel that receives
// each transition payload.
func collect(bus *events.EventBus, eventType events.EventType) <-chan events.ServerTransitionPayload {
	ch := make(chan events.ServerTransitionPayload, 16)
	bus.Subscribe(eventType, "test."+string(eventType), func(ctx context.Context, ev events.Event) error {
		if p, ok := ev.Payload.(events.ServerTransitionPayload); ok {
			ch <- p
		}
		return nil
	})
	return ch
}

func expectNone(t *testing.T, ch <-chan events.ServerTransitionPayload, what string) {
	t.Helper()
	select {
	case p := <-ch:
		t.Fatalf("unexpected %s event: %+v", what, p)
	case <-time.After(100 * time.Millisecond):
	}
}

func expectOne(t *testing.T, ch <-chan events.ServerTransitionPayload, what string) events.ServerTransitionPayload {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s event", what)
		return events.ServerTransitionPayload{}
	}
}

func failure(address string, msg string) events.PingCompletedPayload {
	return events.PingCompletedPayload{
		Address: address, Edition: "java", Online: false, Error: msg, CheckedAt: time.Now(),
	}
}

func success(address string) events.PingCompletedPayload {
	return events.PingCompletedPayload{
		Address: address, Edition: "java", Online: true, LatencyMs: 14.2,
		PlayersOnline: 5, PlayersMax: 50, Version: "1.20.1", CheckedAt: time.Now(),
	}
}

func TestTrackUntrack(t *testing.T) {
	m, _ := newTestManager(t)

	if !m.Track("mc.example.com", "java") {
		t.Fatalf("first Track should change registry")
	}
	if m.Track("mc.example.com", "java") {
		t.Fatalf("duplicate Track should not change registry")
	}
	if !m.Track("mc.example.com", "bedrock") {
		t.Fatalf("same address with different edition is distinct")
	}

	snap, ok := m.Get("mc.example.com", "java")
	if !ok {
		t.Fatalf("tracked server not found")
	}
	if snap.Status != events.MonitorStatusUnknown {
		t.Fatalf("initial status = %v, want unknown", snap.Status)
	}

	if !m.Untrack("mc.example.com", "java") {
		t.Fatalf("Untrack of tracked server should change registry")
	}
	if m.Untrack("mc.example.com", "java") {
		t.Fatalf("Untrack of absent server should not change registry")
	}
	if _, ok := m.Get("mc.example.com", "java"); ok {
		t.Fatalf("untracked server still present")
	}
}

func TestDownTransitionAtThreshold(t *testing.T) {
	m, bus := newTestManager(t)
	downCh := collect(bus, events.EventServerDown)

	m.Track("mc.example.com", "java")

	m.RecordOutcome(failure("mc.example.com", "timeout"))
	m.RecordOutcome(failure("mc.example.com", "timeout"))
	expectNone(t, downCh, "down")

	snap, _ := m.Get("mc.example.com", "java")
	if snap.Status != events.MonitorStatusUnknown {
		t.Fatalf("status before threshold = %v, want unknown", snap.Status)
	}
	if snap.ConsecutiveFails != 2 {
		t.Fatalf("consecutive fails = %d, want 2", snap.ConsecutiveFails)
	}

	m.RecordOutcome(failure("mc.example.com", "connection refused"))
	p := expectOne(t, downCh, "down")
	if p.Address != "mc.example.com" || p.Failures != 3 {
		t.Fatalf("down payload = %+v", p)
	}
	if p.Error != "connection refused" {
		t.Fatalf("down payload error = %q", p.Error)
	}

	// Further failures while already down stay silent.
	m.RecordOutcome(failure("mc.example.com", "timeout"))
	expectNone(t, downCh, "second down")

	snap, _ = m.Get("mc.example.com", "java")
	if snap.Status != events.MonitorStatusDown {
		t.Fatalf("status = %v, want down", snap.Status)
	}
	if snap.ChecksTotal != 4 || snap.ChecksFailed != 4 {
		t.Fatalf("check counters = %d/%d, want 4/4", snap.ChecksFailed, snap.ChecksTotal)
	}
}

func TestRecoveryEmitsEvent(t *testing.T) {
	m, bus := newTestManager(t)
	downCh := collect(bus, events.EventServerDown)
	recoverCh := collect(bus, events.EventServerRecovered)

	m.Track("mc.example.com", "java")

	// First success from unknown must not look like a recovery.
	m.RecordOutcome(success("mc.example.com"))
	expectNone(t, recoverCh, "recovery")

	for i := 0; i < 3; i++ {
		m.RecordOutcome(failure("mc.example.com", "timeout"))
	}
	expectOne(t, downCh, "down")

	m.RecordOutcome(success("mc.example.com"))
	p := expectOne(t, recoverCh, "recovery")
	if p.Address != "mc.example.com" || p.Failures != 0 {
		t.Fatalf("recovery payload = %+v", p)
	}

	// Staying up is silent.
	m.RecordOutcome(success("mc.example.com"))
	expectNone(t, recoverCh, "second recovery")

	snap, _ := m.Get("mc.example.com", "java")
	if snap.Status != events.MonitorStatusUp {
		t.Fatalf("status = %v, want up", snap.Status)
	}
}

func TestRecordOutcomeUpdatesStats(t *testing.T) {
	m, _ := newTestManager(t)
	m.Track("mc.example.com", "java")

	m.RecordOutcome(success("mc.example.com"))

	snap, _ := m.Get("mc.example.com", "java")
	if snap.LatencyMs != 14.2 || snap.PlayersOnline != 5 || snap.PlayersMax != 50 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Version != "1.20.1" {
		t.Fatalf("version = %q", snap.Version)
	}
	if snap.LastOnline.IsZero() || snap.LastChecked.IsZero() {
		t.Fatalf("timestamps not recorded: %+v", snap)
	}

	m.RecordOutcome(failure("mc.example.com", "dns failure"))
	snap, _ = m.Get("mc.example.com", "java")
	if snap.LastError != "dns failure" {
		t.Fatalf("last error = %q", snap.LastError)
	}
	// Version from the last good check is retained.
	if snap.Version != "1.20.1" {
		t.Fatalf("version lost after failure: %q", snap.Version)
	}
}

func TestRecordOutcomeIgnoresUntracked(t *testing.T) {
	m, _ := newTestManager(t)

	m.RecordOutcome(success("stranger.example.com"))
	if counts := m.Counts(); counts.Total != 0 {
		t.Fatalf("untracked outcome created state: %+v", counts)
	}
}

func TestCounts(t *testing.T) {
	m, _ := newTestManager(t)

	m.Track("up.example.com", "java")
	m.Track("down.example.com", "java")
	m.Track("new.example.com", "bedrock")

	m.RecordOutcome(success("up.example.com"))
	for i := 0; i < 3; i++ {
		m.RecordOutcome(failure("down.example.com", "timeout"))
	}

	counts := m.Counts()
	if counts.Total != 3 || counts.Up != 1 || counts.Down != 1 || counts.Unknown != 1 {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestPingCompletedSubscription(t *testing.T) {
	m, bus := newTestManager(t)
	m.Track("mc.example.com", "java")

	if err := bus.EmitSync(context.Background(), events.Event{
		Type:    events.EventPingCompleted,
		Source:  "scheduler",
		Payload: success("mc.example.com"),
	}); err != nil {
		t.Fatalf("EmitSync: %v", err)
	}

	snap, _ := m.Get("mc.example.com", "java")
	if snap.Status != events.MonitorStatusUp {
		t.Fatalf("bus-driven outcome not applied: %+v", snap)
	}
}

func TestSnapshots(t *testing.T) {
	m, _ := newTestManager(t)

	m.Track("b.example.com", "java")
	m.Track("a.example.com", "java")
	m.RecordOutcome(success("a.example.com"))

	snaps := m.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snaps))
	}
	seen := map[string]Snapshot{}
	for _, s := range snaps {
		seen[s.Address] = s
	}
	if _, ok := seen["b.example.com"]; !ok {
		t.Fatalf("missing b.example.com: %+v", snaps)
	}
	if seen["a.example.com"].Status != events.MonitorStatusUp {
		t.Fatalf("a.example.com status = %v", seen["a.example.com"].Status)
	}
}
