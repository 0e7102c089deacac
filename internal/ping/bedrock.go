package ping

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/mcpulse-project/mcpulse/internal/protocol"
)

// PingBedrock queries a Bedrock edition server: resolve, send a single
// unconnected ping datagram, await a single pong under the timeout. The
// address is "host" or "host:port" with 19132 as the default port.
func (c *Client) PingBedrock(ctx context.Context, address string) (*StatusResult, error) {
	start := time.Now()

	host, port, err := splitAddress(address, DefaultBedrockPort)
	if err != nil {
		return nil, err
	}

	resolved, err := c.resolver.Resolve(ctx, host, port)
	if err != nil {
		return nil, newError(KindDNS, "resolve", address, err)
	}

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "udp", net.JoinHostPort(resolved.IP.String(), strconv.Itoa(int(port))))
	if err != nil {
		return nil, classifyNetError("connect", address, err, KindConnection)
	}
	defer conn.Close()

	probe := protocol.BuildUnconnectedPing(time.Now().UnixMilli())
	if err := c.writePacket(conn, probe, address); err != nil {
		return nil, err
	}

	reply := make([]byte, 1024)
	if err := conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, newError(KindIO, "read response", address, err)
	}
	n, err := conn.Read(reply)
	if err != nil {
		return nil, classifyNetError("read response", address, err, KindIO)
	}
	latency := time.Since(start).Seconds() * 1000

	payload, fields, err := protocol.ParseUnconnectedPong(reply[:n])
	if err != nil {
		return nil, newError(KindInvalidResponse, "parse response", address, err)
	}

	result := &StatusResult{
		Online:    true,
		IP:        resolved.IP.String(),
		Port:      port,
		Hostname:  host,
		LatencyMs: latency,
		DNS:       dnsInfo(resolved, c.resolver.TTL()),
		Bedrock:   buildBedrockStatus(fields, payload),
	}

	c.logger.Debug().
		Str("address", address).
		Str("ip", result.IP).
		Float64("latency_ms", result.LatencyMs).
		Str("motd", result.Bedrock.MOTD).
		Msg("bedrock ping complete")
	return result, nil
}

// buildBedrockStatus maps the pong's ordered fields onto the status struct.
// The first six positions are guaranteed by the parser; the rest default to
// empty when the payload ends early.
func buildBedrockStatus(fields []string, payload string) *BedrockStatus {
	get := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	return &BedrockStatus{
		Edition:         get(0),
		MOTD:            get(1),
		ProtocolVersion: get(2),
		Version:         get(3),
		OnlinePlayers:   get(4),
		MaxPlayers:      get(5),
		ServerUID:       get(6),
		MOTD2:           get(7),
		GameMode:        get(8),
		GameModeNumeric: get(9),
		PortV4:          get(10),
		PortV6:          get(11),
		Map:             get(12),
		Software:        get(13),
		Raw:             payload,
	}
}
