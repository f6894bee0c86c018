package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync/atomic"
)

// Frame delimiter constants
const (
	DLE byte = 0x10 // Data link escape
	STX byte = 0x02 // Start of text
	ETX byte = 0x03 // End of text

	// stuffed follows DLE to encode a literal DLE inside a frame
	stuffed byte = 0x00
)

// MaxFrameSize bounds a captured frame. The controller never sends frames
// longer than a display line plus header; anything bigger means the end
// marker was lost and the capture is abandoned.
const MaxFrameSize = 1024

// errFrameOverflow is internal: ReadFrame re-hunts instead of returning it
var errFrameOverflow = errors.New("frame: exceeds maximum size")

// Reader extracts raw frames from a byte stream
type Reader struct {
	r io.ByteReader

	// pending holds a byte read during hunt that must be examined again
	pending    byte
	hasPending bool

	anomalies atomic.Uint64
	skipped   atomic.Uint64
	overflows atomic.Uint64
}

// NewReader creates a frame reader. r is wrapped in a bufio.Reader unless it
// already implements io.ByteReader.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br}
}

// ReadFrame returns the next raw frame: the de-stuffed bytes between DLE STX
// and DLE ETX with the checksum still attached. It returns io.EOF when the
// stream ends, whether between frames or in the middle of one; a partial
// frame is discarded. Other read errors are returned unchanged.
func (fr *Reader) ReadFrame() ([]byte, error) {
	for {
		if err := fr.hunt(); err != nil {
			return nil, err
		}
		frame, err := fr.capture()
		if errors.Is(err, errFrameOverflow) {
			fr.overflows.Add(1)
			continue
		}
		if err != nil {
			return nil, err
		}
		return frame, nil
	}
}

func (fr *Reader) readByte() (byte, error) {
	if fr.hasPending {
		fr.hasPending = false
		return fr.pending, nil
	}
	return fr.r.ReadByte()
}

// hunt consumes bytes up to and including the next DLE STX
func (fr *Reader) hunt() error {
	for {
		b, err := fr.readByte()
		if err != nil {
			return err
		}
		if b != DLE {
			fr.skipped.Add(1)
			continue
		}

		next, err := fr.readByte()
		if err != nil {
			return err
		}
		switch next {
		case STX:
			return nil
		case DLE:
			// DLE DLE STX: the second DLE may open the frame
			fr.skipped.Add(1)
			fr.pending, fr.hasPending = next, true
		default:
			fr.skipped.Add(2)
		}
	}
}

// capture reads payload bytes until DLE ETX, removing byte stuffing
func (fr *Reader) capture() ([]byte, error) {
	var frame bytes.Buffer
	for {
		b, err := fr.readByte()
		if err != nil {
			return nil, err
		}
		if b == DLE {
			next, err := fr.readByte()
			if err != nil {
				return nil, err
			}
			if next == ETX {
				return frame.Bytes(), nil
			}
			if next != stuffed {
				// Unknown escape: keep the DLE, drop the follower
				fr.anomalies.Add(1)
			}
		}
		if frame.Len() >= MaxFrameSize {
			return nil, errFrameOverflow
		}
		frame.WriteByte(b)
	}
}

// EscapeAnomalies returns how many DLE x sequences (x not ETX or 0x00) were
// seen inside frames
func (fr *Reader) EscapeAnomalies() uint64 { return fr.anomalies.Load() }

// SkippedBytes returns how many bytes were discarded while hunting for a
// frame start
func (fr *Reader) SkippedBytes() uint64 { return fr.skipped.Load() }

// Overflows returns how many captures were abandoned for exceeding MaxFrameSize
func (fr *Reader) Overflows() uint64 { return fr.overflows.Load() }

// EncodeFrame wraps payload in DLE STX ... DLE ETX with its checksum,
// stuffing every DLE in the payload and checksum as DLE 0x00.
func EncodeFrame(payload []byte) []byte {
	return EncodeFrameWithChecksum(payload, Checksum(payload))
}

// EncodeFrameWithChecksum is EncodeFrame with a caller-supplied checksum.
// Simulators use it to produce frames that fail verification.
func EncodeFrameWithChecksum(payload []byte, sum uint16) []byte {
	body := make([]byte, 0, len(payload)+2)
	body = append(body, payload...)
	body = append(body, byte(sum>>8), byte(sum))

	out := make([]byte, 0, len(body)+8)
	out = append(out, DLE, STX)
	for _, b := range body {
		out = append(out, b)
		if b == DLE {
			out = append(out, stuffed)
		}
	}
	return append(out, DLE, ETX)
}
