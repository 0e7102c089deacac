// Package dnscache caches hostname resolution for ping targets. Entries
// expire after a fixed TTL and are re-resolved lazily on the next lookup;
// nothing sweeps the cache in the background.
package dnscache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is the entry lifetime used when no TTL is configured.
const DefaultTTL = 300 * time.Second

// LookupIPFunc resolves a hostname to its addresses.
type LookupIPFunc func(ctx context.Context, host string) ([]net.IPAddr, error)

// LookupCNAMEFunc resolves the canonical name for a hostname.
type LookupCNAMEFunc func(ctx context.Context, host string) (string, error)

// Resolved is the cached resolution for one "host:port" key.
type Resolved struct {
	IP       net.IP
	Port     uint16
	ARecords []string
	CNAME    string
}

type entry struct {
	resolved Resolved
	cachedAt time.Time
}

// Cache maps "host:port" keys to resolved addresses with time-based expiry.
// Safe for concurrent use. Resolution happens outside the lock, so
// concurrent misses on the same key may both resolve; the last writer wins.
type Cache struct {
	mu          sync.RWMutex
	entries     map[string]entry
	ttl         time.Duration
	lookupIP    LookupIPFunc
	lookupCNAME LookupCNAMEFunc
	logger      zerolog.Logger
}

// New creates a cache backed by the platform resolver.
func New(ttl time.Duration) *Cache {
	return NewWithLookup(ttl, nil, nil)
}

// NewWithLookup creates a cache with injected lookup functions. Nil
// functions fall back to the platform resolver.
func NewWithLookup(ttl time.Duration, lookupIP LookupIPFunc, lookupCNAME LookupCNAMEFunc) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if lookupIP == nil {
		lookupIP = func(ctx context.Context, host string) ([]net.IPAddr, error) {
			return net.DefaultResolver.LookupIPAddr(ctx, host)
		}
	}
	if lookupCNAME == nil {
		lookupCNAME = func(ctx context.Context, host string) (string, error) {
			return net.DefaultResolver.LookupCNAME(ctx, host)
		}
	}
	return &Cache{
		entries:     make(map[string]entry),
		ttl:         ttl,
		lookupIP:    lookupIP,
		lookupCNAME: lookupCNAME,
		logger:      log.With().Str("component", "dnscache").Logger(),
	}
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Resolve returns the address for host:port, served from cache while the
// entry is younger than the TTL. Literal IP addresses skip resolution and
// the cache entirely.
func (c *Cache) Resolve(ctx context.Context, host string, port uint16) (Resolved, error) {
	if ip := net.ParseIP(host); ip != nil {
		r := Resolved{IP: ip, Port: port}
		if v4 := ip.To4(); v4 != nil {
			r.IP = v4
			r.ARecords = []string{v4.String()}
		}
		return r, nil
	}

	key := net.JoinHostPort(host, strconv.Itoa(int(port)))

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Since(e.cachedAt) < c.ttl {
		return e.resolved, nil
	}

	resolved, err := c.resolve(ctx, host, port)
	if err != nil {
		return Resolved{}, err
	}

	c.mu.Lock()
	c.entries[key] = entry{resolved: resolved, cachedAt: time.Now()}
	c.mu.Unlock()

	c.logger.Debug().
		Str("host", host).
		Str("ip", resolved.IP.String()).
		Str("cname", resolved.CNAME).
		Msg("resolved address")
	return resolved, nil
}

func (c *Cache) resolve(ctx context.Context, host string, port uint16) (Resolved, error) {
	addrs, err := c.lookupIP(ctx, host)
	if err != nil {
		return Resolved{}, fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return Resolved{}, fmt.Errorf("no addresses found for %s", host)
	}

	resolved := Resolved{Port: port}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			resolved.ARecords = append(resolved.ARecords, v4.String())
			if resolved.IP == nil {
				resolved.IP = v4
			}
		}
	}
	if resolved.IP == nil {
		resolved.IP = addrs[0].IP
	}

	// CNAME is informational only; a failed lookup never fails resolution.
	if cname, err := c.lookupCNAME(ctx, host); err == nil {
		trimmed := strings.TrimSuffix(cname, ".")
		if trimmed != "" && trimmed != host {
			resolved.CNAME = trimmed
		}
	}
	return resolved, nil
}

// Flush drops every cached entry and returns how many were removed.
func (c *Cache) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]entry)
	return n
}

// Len reports the number of cached entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
