// Package ping implements the Minecraft server status flows: Java edition
// over TCP with VarInt framing and a JSON payload, Bedrock edition over UDP
// with a fixed-layout datagram, plus bounded-parallel batch queries on top
// of a shared DNS cache.
package ping

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcpulse-project/mcpulse/internal/dnscache"
)

// Client defaults.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxParallel = 10
)

// Client queries Minecraft servers for their status. Configure it up front;
// a Client must not be reconfigured while a batch is in flight.
type Client struct {
	timeout     time.Duration
	maxParallel int
	resolver    *dnscache.Cache
	logger      zerolog.Logger
}

// NewClient creates a client with the default timeout and parallelism and
// a fresh DNS cache.
func NewClient() *Client {
	return &Client{
		timeout:     DefaultTimeout,
		maxParallel: DefaultMaxParallel,
		resolver:    dnscache.New(dnscache.DefaultTTL),
		logger:      log.With().Str("component", "ping").Logger(),
	}
}

// WithTimeout sets the timeout applied to each network operation.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// WithMaxParallel bounds how many targets PingMany queries concurrently.
func (c *Client) WithMaxParallel(n int) *Client {
	if n > 0 {
		c.maxParallel = n
	}
	return c
}

// WithResolver replaces the DNS cache, usually to share one across the
// process.
func (c *Client) WithResolver(cache *dnscache.Cache) *Client {
	if cache != nil {
		c.resolver = cache
	}
	return c
}

// Timeout returns the per-operation network timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// MaxParallel returns the concurrency bound for batch queries.
func (c *Client) MaxParallel() int {
	return c.maxParallel
}

// Resolver returns the client's DNS cache.
func (c *Client) Resolver() *dnscache.Cache {
	return c.resolver
}

// Ping queries one target, dispatching on its declared edition.
func (c *Client) Ping(ctx context.Context, target Target) Outcome {
	var (
		status *StatusResult
		err    error
	)
	switch target.Edition {
	case EditionJava:
		status, err = c.PingJava(ctx, target.Address)
	case EditionBedrock:
		status, err = c.PingBedrock(ctx, target.Address)
	default:
		err = newError(KindInvalidEdition, "ping", target.Address, fmt.Errorf("unknown edition %q", target.Edition))
	}
	return Outcome{Target: target, Status: status, Err: err}
}

// splitAddress separates host and port, applying the edition default when
// the address carries no port.
func splitAddress(address string, defaultPort uint16) (string, uint16, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", 0, newError(KindInvalidAddress, "parse address", address, fmt.Errorf("empty address"))
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		// No port separator; the whole string is the host.
		return strings.Trim(address, "[]"), defaultPort, nil
	}
	if host == "" {
		return "", 0, newError(KindInvalidAddress, "parse address", address, fmt.Errorf("empty host"))
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, newError(KindInvalidPort, "parse address", address, fmt.Errorf("invalid port %q", portStr))
	}
	return host, uint16(port), nil
}

// dnsInfo converts a cache resolution into result metadata.
func dnsInfo(r dnscache.Resolved, ttl time.Duration) *DNSInfo {
	if len(r.ARecords) == 0 && r.CNAME == "" {
		return nil
	}
	return &DNSInfo{
		ARecords: r.ARecords,
		CNAME:    r.CNAME,
		TTL:      uint32(ttl.Seconds()),
	}
}
