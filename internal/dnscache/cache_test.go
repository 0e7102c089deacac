package dnscache

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func fakeLookup(counter *int32, ips ...string) LookupIPFunc {
	return func(ctx context.Context, host string) ([]net.IPAddr, error) {
		atomic.AddInt32(counter, 1)
		addrs := make([]net.IPAddr, 0, len(ips))
		for _, s := range ips {
			addrs = append(addrs, net.IPAddr{IP: net.ParseIP(s)})
		}
		return addrs, nil
	}
}

func noCNAME(ctx context.Context, host string) (string, error) {
	return host + ".", nil
}

func TestResolveCachesWithinTTL(t *testing.T) {
	var calls int32
	c := NewWithLookup(time.Minute, fakeLookup(&calls, "93.184.216.34"), noCNAME)

	for i := 0; i < 3; i++ {
		r, err := c.Resolve(context.Background(), "mc.example.com", 25565)
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if r.IP.String() != "93.184.216.34" || r.Port != 25565 {
			t.Fatalf("resolve %d: got %s:%d", i, r.IP, r.Port)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single lookup, got %d", calls)
	}

	// A different port is a different key.
	if _, err := c.Resolve(context.Background(), "mc.example.com", 25566); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected second lookup for new key, got %d", calls)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
}

func TestResolveExpiredEntryReResolves(t *testing.T) {
	var calls int32
	c := NewWithLookup(time.Minute, fakeLookup(&calls, "93.184.216.34"), noCNAME)

	if _, err := c.Resolve(context.Background(), "mc.example.com", 25565); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Backdate the entry past the TTL.
	c.mu.Lock()
	for k, e := range c.entries {
		e.cachedAt = time.Now().Add(-2 * time.Minute)
		c.entries[k] = e
	}
	c.mu.Unlock()

	if _, err := c.Resolve(context.Background(), "mc.example.com", 25565); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected re-resolution after expiry, got %d lookups", calls)
	}
	if c.Len() != 1 {
		t.Fatalf("expected overwritten entry, got %d entries", c.Len())
	}
}

func TestResolvePrefersIPv4(t *testing.T) {
	var calls int32
	c := NewWithLookup(time.Minute, fakeLookup(&calls, "2606:2800:220:1::1", "93.184.216.34", "93.184.216.35"), noCNAME)

	r, err := c.Resolve(context.Background(), "mc.example.com", 25565)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.IP.String() != "93.184.216.34" {
		t.Fatalf("expected first IPv4 address, got %s", r.IP)
	}
	if len(r.ARecords) != 2 {
		t.Fatalf("expected 2 A records, got %v", r.ARecords)
	}
}

func TestResolveFallsBackToFirstAddress(t *testing.T) {
	var calls int32
	c := NewWithLookup(time.Minute, fakeLookup(&calls, "2606:2800:220:1::1", "2606:2800:220:1::2"), noCNAME)

	r, err := c.Resolve(context.Background(), "mc.example.com", 25565)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.IP.String() != "2606:2800:220:1::1" {
		t.Fatalf("expected first address, got %s", r.IP)
	}
	if len(r.ARecords) != 0 {
		t.Fatalf("expected no A records, got %v", r.ARecords)
	}
}

func TestResolveCapturesCNAME(t *testing.T) {
	var calls int32
	cname := func(ctx context.Context, host string) (string, error) {
		return "edge.example-cdn.net.", nil
	}
	c := NewWithLookup(time.Minute, fakeLookup(&calls, "93.184.216.34"), cname)

	r, err := c.Resolve(context.Background(), "mc.example.com", 25565)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.CNAME != "edge.example-cdn.net" {
		t.Fatalf("unexpected cname: %q", r.CNAME)
	}
}

func TestResolveErrors(t *testing.T) {
	failing := func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return nil, errors.New("no such host")
	}
	c := NewWithLookup(time.Minute, failing, noCNAME)
	if _, err := c.Resolve(context.Background(), "missing.example.com", 25565); err == nil {
		t.Fatalf("expected error for failing lookup")
	}

	empty := func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return nil, nil
	}
	c = NewWithLookup(time.Minute, empty, noCNAME)
	if _, err := c.Resolve(context.Background(), "empty.example.com", 25565); err == nil {
		t.Fatalf("expected error for empty lookup")
	}
	if c.Len() != 0 {
		t.Fatalf("failed resolutions must not be cached, got %d entries", c.Len())
	}
}

func TestResolveLiteralIPSkipsLookup(t *testing.T) {
	var calls int32
	c := NewWithLookup(time.Minute, fakeLookup(&calls, "93.184.216.34"), noCNAME)

	r, err := c.Resolve(context.Background(), "127.0.0.1", 19132)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.IP.String() != "127.0.0.1" || r.Port != 19132 {
		t.Fatalf("got %s:%d", r.IP, r.Port)
	}
	if calls != 0 {
		t.Fatalf("literal IP must not hit the resolver, got %d lookups", calls)
	}
	if c.Len() != 0 {
		t.Fatalf("literal IP must not be cached, got %d entries", c.Len())
	}
}

func TestFlush(t *testing.T) {
	var calls int32
	c := NewWithLookup(time.Minute, fakeLookup(&calls, "93.184.216.34"), noCNAME)

	if _, err := c.Resolve(context.Background(), "mc.example.com", 25565); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := c.Flush(); n != 1 {
		t.Fatalf("expected 1 flushed entry, got %d", n)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", c.Len())
	}
}
