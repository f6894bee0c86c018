package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortFrame   = errors.New("frame: too short for checksum")
	ErrChecksum     = errors.New("frame: checksum mismatch")
	ErrNoFrameType  = errors.New("frame: missing type tag")
	ErrShortPayload = errors.New("frame: payload too short")
)

// ChecksumError reports a frame whose trailing checksum does not match its
// contents. It matches ErrChecksum with errors.Is.
type ChecksumError struct {
	Received   uint16
	Calculated uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("frame: checksum mismatch (received 0x%04x, calculated 0x%04x)",
		e.Received, e.Calculated)
}

// Unwrap returns ErrChecksum
func (e *ChecksumError) Unwrap() error {
	return ErrChecksum
}

// Checksum computes the frame checksum over payload. The sum is seeded with
// the start marker bytes and wraps at 16 bits.
func Checksum(payload []byte) uint16 {
	sum := uint16(DLE) + uint16(STX)
	for _, b := range payload {
		sum += uint16(b)
	}
	return sum
}

// Verify checks the trailing big-endian checksum of a raw frame and returns
// the payload without it. The returned slice aliases raw.
func Verify(raw []byte) ([]byte, error) {
	if len(raw) < 2 {
		return nil, ErrShortFrame
	}
	payload := raw[:len(raw)-2]
	received := binary.BigEndian.Uint16(raw[len(raw)-2:])
	if calculated := Checksum(payload); calculated != received {
		return nil, &ChecksumError{Received: received, Calculated: calculated}
	}
	return payload, nil
}
