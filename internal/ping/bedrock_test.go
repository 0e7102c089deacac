package ping

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/mcpulse-project/mcpulse/internal/protocol"
)

// bedrockFixture is an in-process Bedrock status responder.
type bedrockFixture struct {
	pc     net.PacketConn
	reply  []byte
	silent bool
	probes chan []byte
}

func startBedrockFixture(t *testing.T, f *bedrockFixture) *bedrockFixture {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	f.pc = pc
	f.probes = make(chan []byte, 8)
	go f.serve()
	t.Cleanup(func() { pc.Close() })
	return f
}

func (f *bedrockFixture) addr() string {
	return f.pc.LocalAddr().String()
}

func (f *bedrockFixture) serve() {
	buf := make([]byte, 256)
	for {
		n, addr, err := f.pc.ReadFrom(buf)
		if err != nil {
			return
		}
		probe := make([]byte, n)
		copy(probe, buf[:n])
		select {
		case f.probes <- probe:
		default:
		}
		if f.silent {
			continue
		}
		f.pc.WriteTo(f.reply, addr)
	}
}

func bedrockPong(payload string) []byte {
	b := protocol.NewPacketBuilder()
	b.WriteByte(protocol.PktUnconnectedPong)
	b.WriteUint64(12345) // send time echo
	b.WriteUint64(67890) // server guid
	b.WriteBytes(protocol.UnconnectedMagic[:])
	b.WriteUint16(uint16(len(payload)))
	b.WriteBytes([]byte(payload))
	return b.Build()
}

func TestPingBedrock(t *testing.T) {
	const payload = "MCPE;My Server;422;1.18.0;5;20;123456;Bedrock;Survival;1"
	f := startBedrockFixture(t, &bedrockFixture{reply: bedrockPong(payload)})

	st, err := NewClient().WithTimeout(2 * time.Second).PingBedrock(context.Background(), f.addr())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.Online || st.IP != "127.0.0.1" {
		t.Fatalf("unexpected endpoint: %s online=%v", st.IP, st.Online)
	}
	if st.LatencyMs <= 0 {
		t.Fatalf("expected positive latency, got %f", st.LatencyMs)
	}
	if st.Java != nil {
		t.Fatalf("bedrock ping must not produce a java payload")
	}

	b := st.Bedrock
	if b == nil {
		t.Fatalf("missing bedrock payload")
	}
	if b.Edition != "MCPE" || b.MOTD != "My Server" {
		t.Fatalf("unexpected edition/motd: %q %q", b.Edition, b.MOTD)
	}
	if b.ProtocolVersion != "422" || b.Version != "1.18.0" {
		t.Fatalf("unexpected version fields: %q %q", b.ProtocolVersion, b.Version)
	}
	if b.OnlinePlayers != "5" || b.MaxPlayers != "20" {
		t.Fatalf("unexpected players: %q/%q", b.OnlinePlayers, b.MaxPlayers)
	}
	if b.ServerUID != "123456" || b.MOTD2 != "Bedrock" {
		t.Fatalf("unexpected uid/motd2: %q %q", b.ServerUID, b.MOTD2)
	}
	if b.GameMode != "Survival" || b.GameModeNumeric != "1" {
		t.Fatalf("unexpected gamemode: %q %q", b.GameMode, b.GameModeNumeric)
	}
	if b.PortV4 != "" || b.PortV6 != "" || b.Map != "" || b.Software != "" {
		t.Fatalf("missing positions must be empty: %+v", b)
	}
	if b.Raw != payload {
		t.Fatalf("raw payload not retained: %q", b.Raw)
	}

	// The probe on the wire must be the fixed unconnected ping layout.
	select {
	case probe := <-f.probes:
		if len(probe) != 1+8+16+8 {
			t.Fatalf("unexpected probe size: %d", len(probe))
		}
		if probe[0] != protocol.PktUnconnectedPing {
			t.Fatalf("unexpected probe id: 0x%02X", probe[0])
		}
		if !bytes.Equal(probe[9:25], protocol.UnconnectedMagic[:]) {
			t.Fatalf("probe magic mismatch: % X", probe[9:25])
		}
	case <-time.After(time.Second):
		t.Fatalf("fixture saw no probe")
	}
}

func TestPingBedrockShortReply(t *testing.T) {
	f := startBedrockFixture(t, &bedrockFixture{reply: bedrockPong("MCPE;My Server;422;1.18.0;5;20")[:34]})

	_, err := NewClient().WithTimeout(2 * time.Second).PingBedrock(context.Background(), f.addr())
	if KindOf(err) != KindInvalidResponse {
		t.Fatalf("got kind %q err %v", KindOf(err), err)
	}
}

func TestPingBedrockTooFewFields(t *testing.T) {
	f := startBedrockFixture(t, &bedrockFixture{reply: bedrockPong("MCPE;My Server;422")})

	_, err := NewClient().WithTimeout(2 * time.Second).PingBedrock(context.Background(), f.addr())
	if KindOf(err) != KindInvalidResponse {
		t.Fatalf("got kind %q err %v", KindOf(err), err)
	}
}

func TestPingBedrockTimeout(t *testing.T) {
	f := startBedrockFixture(t, &bedrockFixture{silent: true})

	_, err := NewClient().WithTimeout(150 * time.Millisecond).PingBedrock(context.Background(), f.addr())
	if KindOf(err) != KindTimeout {
		t.Fatalf("got kind %q err %v", KindOf(err), err)
	}
}
