package protocol

import "errors"

// ErrIncomplete reports that a buffer ended before the value or frame being
// decoded was complete. Callers accumulating from a stream treat it as
// "read more bytes".
var ErrIncomplete = errors.New("incomplete data")

// ErrVarIntTooLong reports a VarInt that did not terminate within
// MaxVarIntBytes bytes.
var ErrVarIntTooLong = errors.New("varint exceeds 5 bytes")

// AppendVarInt appends the VarInt encoding of v to dst and returns the
// extended slice. The value is treated as an unsigned 32-bit quantity, so
// negative inputs encode to the full five bytes.
func AppendVarInt(dst []byte, v int32) []byte {
	u := uint32(v)
	for {
		if u&^0x7F == 0 {
			return append(dst, byte(u))
		}
		dst = append(dst, byte(u&0x7F|0x80))
		u >>= 7
	}
}

// ReadVarInt decodes a VarInt from the start of buf. It returns the value
// and the number of bytes consumed. If buf ends before the VarInt
// terminates the error is ErrIncomplete; if the encoding runs past
// MaxVarIntBytes it is ErrVarIntTooLong.
func ReadVarInt(buf []byte) (int32, int, error) {
	var result int32
	for i := 0; ; i++ {
		if i >= MaxVarIntBytes {
			return 0, 0, ErrVarIntTooLong
		}
		if i >= len(buf) {
			return 0, 0, ErrIncomplete
		}
		b := buf[i]
		result |= int32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
	}
}

// VarIntLen returns the encoded size of v in bytes.
func VarIntLen(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}
