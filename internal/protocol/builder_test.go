package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestBuildHandshake(t *testing.T) {
	got := BuildHandshake("mc.example.com", 25565)

	want := []byte{
		0x14,       // frame length: 20 bytes of payload
		0x00,       // packet id
		0x2F,       // protocol version 47
		0x0E,       // host length 14
		'm', 'c', '.', 'e', 'x', 'a', 'm', 'p', 'l', 'e', '.', 'c', 'o', 'm',
		0x63, 0xDD, // port 25565 big-endian
		0x01, // next state: status
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("handshake mismatch:\ngot  % X\nwant % X", got, want)
	}
}

func TestBuildStatusRequest(t *testing.T) {
	got := BuildStatusRequest()
	want := []byte{0x01, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("status request mismatch: got % X, want % X", got, want)
	}
}

func TestBuildUnconnectedPing(t *testing.T) {
	const sendTime = int64(0x0102030405060708)
	got := BuildUnconnectedPing(sendTime)

	if len(got) != 1+8+16+8 {
		t.Fatalf("unexpected probe size: %d", len(got))
	}
	if got[0] != PktUnconnectedPing {
		t.Fatalf("unexpected packet id: 0x%02X", got[0])
	}
	if ts := binary.BigEndian.Uint64(got[1:9]); ts != uint64(sendTime) {
		t.Fatalf("unexpected timestamp: 0x%016X", ts)
	}
	if !bytes.Equal(got[9:25], UnconnectedMagic[:]) {
		t.Fatalf("magic mismatch: % X", got[9:25])
	}
	if !bytes.Equal(got[25:33], make([]byte, 8)) {
		t.Fatalf("client guid not zeroed: % X", got[25:33])
	}
}

func TestPacketBuilderFraming(t *testing.T) {
	b := NewPacketBuilder()
	b.WriteVarInt(int32(PktStatus)).WriteString("abc")

	framed := b.BuildFramed()
	if framed[0] != byte(b.Len()) {
		t.Fatalf("frame prefix %d, payload %d bytes", framed[0], b.Len())
	}
	if len(framed) != b.Len()+1 {
		t.Fatalf("framed size %d, payload %d", len(framed), b.Len())
	}

	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("builder not empty after reset: %d bytes", b.Len())
	}
}
