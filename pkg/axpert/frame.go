package axpert

import (
	"bytes"
	"fmt"
)

// Wire framing constants. CR terminates every frame in both directions and
// '(' marks the start of a response. Both bytes are reserved: they may not
// appear inside payload or CRC content other than at their designated
// positions, so a CRC byte that collides with either value is incremented
// by one before transmission (0x0D -> 0x0E, 0x28 -> 0x29). Validation has
// to apply the same adjustment before comparing.
const (
	frameTerminator   = 0x0D // '\r'
	responseStartByte = 0x28 // '('
)

// frameCRC returns the two CRC bytes (high first) for payload with the
// reserved-byte adjustment applied to each byte independently.
func frameCRC(payload []byte) (hi, lo byte) {
	crc := crc16(payload)
	return escapeReserved(byte(crc >> 8)), escapeReserved(byte(crc))
}

func escapeReserved(b byte) byte {
	if b == frameTerminator || b == responseStartByte {
		return b + 1
	}
	return b
}

// EncodeFrame builds the outgoing wire frame for a mnemonic:
// mnemonic bytes, CRC high byte, CRC low byte, terminator.
func EncodeFrame(mnemonic string) []byte {
	payload := []byte(mnemonic)
	hi, lo := frameCRC(payload)
	frame := make([]byte, 0, len(payload)+3)
	frame = append(frame, payload...)
	frame = append(frame, hi, lo, frameTerminator)
	return frame
}

// DecodeFrame validates a raw response frame and returns its payload with
// the start marker, CRC bytes and terminator stripped.
//
// Returns ErrTruncated when no terminator is present within raw, and
// ErrCRCMismatch when the received CRC does not match the one recomputed
// over the payload. A failed frame must not be schema-decoded.
func DecodeFrame(raw []byte) ([]byte, error) {
	end := bytes.IndexByte(raw, frameTerminator)
	if end < 0 {
		return nil, fmt.Errorf("%w: %d bytes read", ErrTruncated, len(raw))
	}
	frame := raw[:end]

	if len(frame) < 1 || frame[0] != responseStartByte {
		return nil, fmt.Errorf("%w: response does not start with 0x%02X", ErrCRCMismatch, responseStartByte)
	}
	// start marker || payload || crcHi || crcLo
	if len(frame) < 3 {
		return nil, fmt.Errorf("%w: frame too short (%d bytes)", ErrTruncated, len(frame))
	}

	payload := frame[1 : len(frame)-2]
	gotHi, gotLo := frame[len(frame)-2], frame[len(frame)-1]

	// The device computes the response CRC over the start marker plus the
	// payload, i.e. everything before the CRC bytes.
	wantHi, wantLo := frameCRC(frame[:len(frame)-2])
	if gotHi != wantHi || gotLo != wantLo {
		return nil, fmt.Errorf("%w: got %02X%02X, want %02X%02X", ErrCRCMismatch, gotHi, gotLo, wantHi, wantLo)
	}
	return payload, nil
}
