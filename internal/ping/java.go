package ping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/mcpulse-project/mcpulse/internal/protocol"
)

// PingJava queries a Java edition server: resolve, connect, handshake,
// status request, then read and decode the framed JSON response. The
// address is "host" or "host:port" with 25565 as the default port.
func (c *Client) PingJava(ctx context.Context, address string) (*StatusResult, error) {
	start := time.Now()

	host, port, err := splitAddress(address, DefaultJavaPort)
	if err != nil {
		return nil, err
	}

	resolved, err := c.resolver.Resolve(ctx, host, port)
	if err != nil {
		return nil, newError(KindDNS, "resolve", address, err)
	}

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(resolved.IP.String(), strconv.Itoa(int(port))))
	if err != nil {
		return nil, classifyNetError("connect", address, err, KindConnection)
	}
	defer conn.Close()

	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}

	if err := c.writePacket(conn, protocol.BuildHandshake(host, port), address); err != nil {
		return nil, err
	}
	if err := c.writePacket(conn, protocol.BuildStatusRequest(), address); err != nil {
		return nil, err
	}

	frame, err := c.readStatusFrame(conn, address)
	if err != nil {
		return nil, err
	}

	doc, err := protocol.DecodeStatusResponse(frame)
	if err != nil {
		return nil, newError(KindInvalidResponse, "parse response", address, err)
	}
	latency := time.Since(start).Seconds() * 1000

	if !utf8.Valid(doc) {
		return nil, newError(KindUTF8, "decode status", address, fmt.Errorf("status document is not valid utf-8"))
	}
	var tree interface{}
	if err := json.Unmarshal(doc, &tree); err != nil {
		return nil, newError(KindJSON, "decode status", address, err)
	}
	raw, _ := tree.(map[string]interface{})

	result := &StatusResult{
		Online:    true,
		IP:        resolved.IP.String(),
		Port:      port,
		Hostname:  host,
		LatencyMs: latency,
		DNS:       dnsInfo(resolved, c.resolver.TTL()),
		Java:      buildJavaStatus(raw),
	}

	c.logger.Debug().
		Str("address", address).
		Str("ip", result.IP).
		Float64("latency_ms", result.LatencyMs).
		Int("players", result.Java.OnlinePlayers).
		Msg("java ping complete")
	return result, nil
}

// writePacket sends one packet under the write deadline.
func (c *Client) writePacket(conn net.Conn, packet []byte, address string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return newError(KindIO, "send", address, err)
	}
	if _, err := conn.Write(packet); err != nil {
		return classifyNetError("send", address, err, KindIO)
	}
	return nil
}

// readStatusFrame accumulates reads until the buffer holds one complete
// frame. TCP may deliver the response in arbitrary fragments, so frame
// completeness is re-evaluated after every read.
func (c *Client) readStatusFrame(conn net.Conn, address string) ([]byte, error) {
	buf := make([]byte, 0, 1024)
	tmp := make([]byte, 1024)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, newError(KindIO, "read response", address, err)
		}
		n, err := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			_, ferr := protocol.FrameSize(buf)
			if ferr == nil {
				return buf, nil
			}
			if !errors.Is(ferr, protocol.ErrIncomplete) {
				return nil, newError(KindInvalidResponse, "read response", address, ferr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, newError(KindInvalidResponse, "read response", address,
					fmt.Errorf("connection closed after %d bytes without a complete response", len(buf)))
			}
			return nil, classifyNetError("read response", address, err, KindIO)
		}
	}
}

// buildJavaStatus normalizes the decoded status tree. Missing or malformed
// fields fall back to defaults; malformed sample, plugin and mod entries
// are dropped rather than rejected.
func buildJavaStatus(raw map[string]interface{}) *JavaStatus {
	st := &JavaStatus{
		Version:     "Unknown",
		Description: "No description",
		Raw:         raw,
	}

	if version, ok := raw["version"].(map[string]interface{}); ok {
		if name, ok := version["name"].(string); ok {
			st.Version = name
		}
		if proto, ok := version["protocol"].(float64); ok {
			st.Protocol = int(proto)
		}
	}

	if players, ok := raw["players"].(map[string]interface{}); ok {
		if online, ok := players["online"].(float64); ok {
			st.OnlinePlayers = int(online)
		}
		if max, ok := players["max"].(float64); ok {
			st.MaxPlayers = int(max)
		}
		if sample, ok := players["sample"].([]interface{}); ok {
			for _, item := range sample {
				entry, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				name, nameOK := entry["name"].(string)
				id, idOK := entry["id"].(string)
				if nameOK && idOK {
					st.Sample = append(st.Sample, PlayerSample{Name: name, ID: id})
				}
			}
		}
	}

	switch desc := raw["description"].(type) {
	case string:
		st.Description = desc
	case map[string]interface{}:
		if text, ok := desc["text"].(string); ok {
			st.Description = text
		}
	}

	if favicon, ok := raw["favicon"].(string); ok {
		st.Favicon = favicon
	}
	if name, ok := raw["map"].(string); ok {
		st.Map = name
	}
	if mode, ok := raw["gamemode"].(string); ok {
		st.GameMode = mode
	}
	if software, ok := raw["software"].(string); ok {
		st.Software = software
	}

	if plugins, ok := raw["plugins"].([]interface{}); ok {
		for _, item := range plugins {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			name, ok := entry["name"].(string)
			if !ok {
				continue
			}
			plugin := JavaPlugin{Name: name}
			if version, ok := entry["version"].(string); ok {
				plugin.Version = version
			}
			st.Plugins = append(st.Plugins, plugin)
		}
	}

	if mods, ok := raw["mods"].([]interface{}); ok {
		for _, item := range mods {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			modID, ok := entry["modid"].(string)
			if !ok {
				continue
			}
			mod := JavaMod{ModID: modID}
			if version, ok := entry["version"].(string); ok {
				mod.Version = version
			}
			st.Mods = append(st.Mods, mod)
		}
	}

	return st
}
