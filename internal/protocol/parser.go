package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/muurk/aqualogic/internal/state"
	"golang.org/x/text/encoding/charmap"
)

// FrameType is the two-byte tag at the start of every verified payload
type FrameType uint16

// Frame type tags as seen on the wire (first byte high)
const (
	FrameTypeKeyEvent      FrameType = 0x0003
	FrameTypeKeepAlive     FrameType = 0x0101
	FrameTypeIndicators    FrameType = 0x0102
	FrameTypeDisplayUpdate FrameType = 0x0103
)

// IndicatorPayloadSize is the number of bitmask bytes in an indicators frame
const IndicatorPayloadSize = 4

// Known reports whether t is one of the modelled frame types
func (t FrameType) Known() bool {
	switch t {
	case FrameTypeKeyEvent, FrameTypeKeepAlive, FrameTypeIndicators, FrameTypeDisplayUpdate:
		return true
	}
	return false
}

// Bytes returns the wire encoding of the tag
func (t FrameType) Bytes() []byte {
	return []byte{byte(t >> 8), byte(t)}
}

func (t FrameType) String() string {
	return GetMessageTypeName(t)
}

// Message represents a decoded frame
type Message interface {
	Type() FrameType
	String() string
}

// KeepAliveMessage (01 01) - Periodic heartbeat, carries no state
type KeepAliveMessage struct{}

func (m *KeepAliveMessage) Type() FrameType { return FrameTypeKeepAlive }

func (m *KeepAliveMessage) String() string { return "KeepAlive{}" }

// KeyEventMessage (00 03) - A panel or remote key press. The code is opaque.
type KeyEventMessage struct {
	Code []byte
}

func (m *KeyEventMessage) Type() FrameType { return FrameTypeKeyEvent }

func (m *KeyEventMessage) String() string {
	return fmt.Sprintf("KeyEvent{code=%s}", hex.EncodeToString(m.Code))
}

// IndicatorMessage (01 02) - Panel LED states
type IndicatorMessage struct {
	Indicators state.IndicatorSet
	Raw        uint32 // Full bitmask including reserved bits
}

func (m *IndicatorMessage) Type() FrameType { return FrameTypeIndicators }

func (m *IndicatorMessage) String() string {
	return fmt.Sprintf("Indicators{mask=0x%08x, active=%s}", m.Raw, m.Indicators)
}

// DisplayMessage (01 03) - One line of LCD text, already decoded from Latin-1
type DisplayMessage struct {
	Text string
}

func (m *DisplayMessage) Type() FrameType { return FrameTypeDisplayUpdate }

func (m *DisplayMessage) String() string {
	return fmt.Sprintf("Display{%q}", m.Text)
}

// UnknownMessage - Fallback for unrecognized frame types
type UnknownMessage struct {
	Tag  FrameType
	Data []byte
}

func (m *UnknownMessage) Type() FrameType { return m.Tag }

func (m *UnknownMessage) String() string {
	return fmt.Sprintf("Unknown{type=0x%04x, len=%d}", uint16(m.Tag), len(m.Data))
}

// ParseMessage classifies a verified payload by its type tag and decodes the
// remainder. Unknown tags yield an UnknownMessage and a nil error.
func ParseMessage(payload []byte) (Message, error) {
	if len(payload) < 2 {
		return nil, ErrNoFrameType
	}
	tag := FrameType(binary.BigEndian.Uint16(payload[0:2]))
	body := payload[2:]

	switch tag {
	case FrameTypeKeepAlive:
		return &KeepAliveMessage{}, nil
	case FrameTypeKeyEvent:
		return &KeyEventMessage{Code: cloneBytes(body)}, nil
	case FrameTypeIndicators:
		return parseIndicators(body)
	case FrameTypeDisplayUpdate:
		return parseDisplay(body)
	default:
		return &UnknownMessage{Tag: tag, Data: cloneBytes(body)}, nil
	}
}

func parseIndicators(body []byte) (*IndicatorMessage, error) {
	if len(body) < IndicatorPayloadSize {
		return nil, fmt.Errorf("indicators: got %d bytes, want %d: %w",
			len(body), IndicatorPayloadSize, ErrShortPayload)
	}
	// Bytes past the bitmask are reserved
	mask := binary.LittleEndian.Uint32(body[:IndicatorPayloadSize])
	return &IndicatorMessage{
		Indicators: state.IndicatorSetFromMask(mask),
		Raw:        mask,
	}, nil
}

func parseDisplay(body []byte) (*DisplayMessage, error) {
	text, err := DecodeText(body)
	if err != nil {
		return nil, fmt.Errorf("display: %w", err)
	}
	return &DisplayMessage{Text: text}, nil
}

// DecodeText converts single-byte ISO-8859-1 display text to a Go string
func DecodeText(b []byte) (string, error) {
	return charmap.ISO8859_1.NewDecoder().String(string(b))
}

// EncodeText converts a Go string to ISO-8859-1 display bytes
func EncodeText(s string) ([]byte, error) {
	return charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
}

// GetMessageTypeName returns a human-readable name for a frame type
func GetMessageTypeName(t FrameType) string {
	switch t {
	case FrameTypeKeepAlive:
		return "KeepAlive"
	case FrameTypeKeyEvent:
		return "KeyEvent"
	case FrameTypeIndicators:
		return "Indicators"
	case FrameTypeDisplayUpdate:
		return "DisplayUpdate"
	default:
		return fmt.Sprintf("Unknown(0x%04x)", uint16(t))
	}
}

// TrimDisplay collapses runs of whitespace the LCD uses for alignment
func TrimDisplay(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
