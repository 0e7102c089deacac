// Package protocol implements the binary packet builders and parsers for
// the Minecraft server status protocols. Java edition speaks a VarInt
// length-prefixed TCP framing with a JSON payload; Bedrock edition speaks
// a fixed-layout UDP datagram with a semicolon-delimited payload.
package protocol

// Java edition status packet IDs. The handshake, status request and status
// response all share packet ID 0x00; they are distinguished by direction
// and connection state.
const (
	PktStatus byte = 0x00 // Handshake, status request and status response
)

// Java edition handshake constants.
const (
	HandshakeProtocolVersion int32 = 47 // Protocol version sent in the handshake
	HandshakeNextStateStatus int32 = 1  // Next-state field requesting status
)

// Bedrock edition (RakNet) packet IDs.
const (
	PktUnconnectedPing byte = 0x01 // Client probe
	PktUnconnectedPong byte = 0x1C // Server reply carrying the status payload
)

// UnconnectedMagic is the fixed RakNet offline-message marker carried in
// every unconnected ping.
var UnconnectedMagic = [16]byte{
	0x00, 0xFF, 0xFF, 0x00, 0xFE, 0xFE, 0xFE, 0xFE,
	0xFD, 0xFD, 0xFD, 0xFD, 0x12, 0x34, 0x56, 0x78,
}

// PongHeaderSize is the number of bytes preceding the status payload in an
// unconnected pong: packet ID, timestamp, server GUID, magic and the
// payload length prefix.
const PongHeaderSize = 35

// PongMandatoryFields is the minimum number of semicolon-delimited fields a
// pong payload must carry.
const PongMandatoryFields = 6

// MaxPacketSize is the maximum accepted size for a single Java status frame.
const MaxPacketSize = 65535

// MaxVarIntBytes is the longest valid VarInt encoding.
const MaxVarIntBytes = 5
