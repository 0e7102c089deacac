package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PacketBuilder constructs binary packets for the Java and Bedrock status
// protocols.
type PacketBuilder struct {
	buf bytes.Buffer
}

// NewPacketBuilder creates a new PacketBuilder.
func NewPacketBuilder() *PacketBuilder {
	return &PacketBuilder{}
}

// Reset clears the builder for reuse.
func (b *PacketBuilder) Reset() {
	b.buf.Reset()
}

// WriteByte writes a single byte.
func (b *PacketBuilder) WriteByte(v byte) *PacketBuilder {
	b.buf.WriteByte(v)
	return b
}

// WriteVarInt writes a VarInt-encoded 32-bit value.
func (b *PacketBuilder) WriteVarInt(v int32) *PacketBuilder {
	b.buf.Write(AppendVarInt(nil, v))
	return b
}

// WriteString writes a VarInt length-prefixed string.
// Format: [length:varint][string bytes...]
func (b *PacketBuilder) WriteString(s string) *PacketBuilder {
	b.WriteVarInt(int32(len(s)))
	b.buf.WriteString(s)
	return b
}

// WriteUint16 writes a uint16 in big-endian order.
func (b *PacketBuilder) WriteUint16(v uint16) *PacketBuilder {
	binary.Write(&b.buf, binary.BigEndian, v)
	return b
}

// WriteUint64 writes a uint64 in big-endian order.
func (b *PacketBuilder) WriteUint64(v uint64) *PacketBuilder {
	binary.Write(&b.buf, binary.BigEndian, v)
	return b
}

// WriteBytes writes raw bytes.
func (b *PacketBuilder) WriteBytes(data []byte) *PacketBuilder {
	b.buf.Write(data)
	return b
}

// Build returns the constructed packet bytes.
func (b *PacketBuilder) Build() []byte {
	return b.buf.Bytes()
}

// BuildFramed returns the packet with a VarInt length prefix, the framing
// every Java status packet uses on the wire.
func (b *PacketBuilder) BuildFramed() []byte {
	data := b.buf.Bytes()
	framed := AppendVarInt(make([]byte, 0, VarIntLen(int32(len(data)))+len(data)), int32(len(data)))
	return append(framed, data...)
}

// Len returns the current size of the packet being built.
func (b *PacketBuilder) Len() int {
	return b.buf.Len()
}

// ---- Pre-built packet constructors ----

// BuildHandshake creates a framed Java handshake requesting server status.
// Format: [id:varint][protocol:varint][host:str][port:2BE][next_state:varint]
func BuildHandshake(host string, port uint16) []byte {
	b := NewPacketBuilder()
	b.WriteVarInt(int32(PktStatus))
	b.WriteVarInt(HandshakeProtocolVersion)
	b.WriteString(host)
	b.WriteUint16(port)
	b.WriteVarInt(HandshakeNextStateStatus)
	return b.BuildFramed()
}

// BuildStatusRequest creates a framed Java status request.
// Format: [id:varint]
func BuildStatusRequest() []byte {
	b := NewPacketBuilder()
	b.WriteVarInt(int32(PktStatus))
	return b.BuildFramed()
}

// BuildUnconnectedPing creates a Bedrock unconnected ping datagram.
// Format: [id:1][time_ms:8BE][magic:16][client_guid:8]
func BuildUnconnectedPing(unixMillis int64) []byte {
	b := NewPacketBuilder()
	b.WriteByte(PktUnconnectedPing)
	b.WriteUint64(uint64(unixMillis))
	b.WriteBytes(UnconnectedMagic[:])
	b.WriteUint64(0)
	return b.Build()
}

// String returns a hex dump of the current packet for debugging.
func (b *PacketBuilder) String() string {
	data := b.buf.Bytes()
	return fmt.Sprintf("PacketBuilder[%d bytes]: %x", len(data), data)
}
