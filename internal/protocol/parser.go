package protocol

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// FrameSize inspects the start of buf for a Java status frame and returns
// the total frame size including the length prefix. It returns
// ErrIncomplete while buf does not yet hold the prefix or the declared
// payload; in that case the returned size is the total still required,
// or zero when the prefix itself is incomplete.
func FrameSize(buf []byte) (int, error) {
	length, n, err := ReadVarInt(buf)
	if err != nil {
		return 0, err
	}
	if length <= 0 {
		return 0, fmt.Errorf("invalid frame length: %d", length)
	}
	if length > MaxPacketSize {
		return 0, fmt.Errorf("frame too large: %d bytes (max %d)", length, MaxPacketSize)
	}
	total := n + int(length)
	if len(buf) < total {
		return total, ErrIncomplete
	}
	return total, nil
}

// DecodeStatusResponse parses a complete Java status response and returns
// the raw JSON document it carries. Every declared length is validated
// against the bytes actually present.
// Frame format: [frame_len:varint][id:varint][json_len:varint][json bytes...]
func DecodeStatusResponse(buf []byte) ([]byte, error) {
	frameLen, n, err := ReadVarInt(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame length: %w", err)
	}
	if frameLen <= 0 {
		return nil, fmt.Errorf("invalid frame length: %d", frameLen)
	}
	if frameLen > MaxPacketSize {
		return nil, fmt.Errorf("frame too large: %d bytes (max %d)", frameLen, MaxPacketSize)
	}
	if int(frameLen) > len(buf)-n {
		return nil, fmt.Errorf("frame length %d exceeds %d received bytes: %w",
			frameLen, len(buf)-n, ErrIncomplete)
	}
	payload := buf[n : n+int(frameLen)]

	id, n, err := ReadVarInt(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to read packet id: %w", err)
	}
	if id != int32(PktStatus) {
		return nil, fmt.Errorf("unexpected packet id: 0x%02X", id)
	}
	payload = payload[n:]

	jsonLen, n, err := ReadVarInt(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to read status length: %w", err)
	}
	if jsonLen < 0 {
		return nil, fmt.Errorf("invalid status length: %d", jsonLen)
	}
	if int(jsonLen) > len(payload)-n {
		return nil, fmt.Errorf("status length %d exceeds %d remaining bytes",
			jsonLen, len(payload)-n)
	}
	return payload[n : n+int(jsonLen)], nil
}

// ParseUnconnectedPong validates a Bedrock unconnected pong datagram and
// splits its status payload on semicolons. The payload is decoded as UTF-8
// with invalid sequences replaced, and is returned alongside the fields.
func ParseUnconnectedPong(datagram []byte) (string, []string, error) {
	if len(datagram) < PongHeaderSize {
		return "", nil, fmt.Errorf("pong too short: %d bytes (min %d)", len(datagram), PongHeaderSize)
	}
	if datagram[0] != PktUnconnectedPong {
		return "", nil, fmt.Errorf("unexpected packet id: 0x%02X", datagram[0])
	}
	payload := strings.ToValidUTF8(string(datagram[PongHeaderSize:]), string(utf8.RuneError))
	fields := strings.Split(payload, ";")
	if len(fields) < PongMandatoryFields {
		return "", nil, fmt.Errorf("pong payload has %d fields (min %d)", len(fields), PongMandatoryFields)
	}
	return payload, fields, nil
}
