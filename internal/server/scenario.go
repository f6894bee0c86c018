package server

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/muurk/aqualogic/internal/protocol"
	"github.com/muurk/aqualogic/internal/state"
)

// Scenario is the controller state a simulator plays back
type Scenario struct {
	PoolTemperature    int
	AirTemperature     int
	ChlorinatorPercent int
	Unit               state.TemperatureUnit
	Indicators         state.IndicatorSet

	// Messages are extra display lines that carry no reading
	Messages []string

	// KeyCode, when set, adds one key event frame per cycle
	KeyCode []byte
}

// DefaultScenario is a pool in filter mode on a warm evening
func DefaultScenario() Scenario {
	return Scenario{
		PoolTemperature:    78,
		AirTemperature:     72,
		ChlorinatorPercent: 50,
		Unit:               state.Fahrenheit,
		Indicators:         state.NewIndicatorSet(state.IndicatorPool, state.IndicatorFilter, state.IndicatorLights),
		Messages:           []string{"Salt Level 3100 PPM", "Filter Speed 75%"},
	}
}

// DisplayLines returns the LCD lines of one cycle
func (s Scenario) DisplayLines() []string {
	unit := "°" + s.Unit.String()
	lines := []string{
		fmt.Sprintf("Pool Temp %d%s", s.PoolTemperature, unit),
		fmt.Sprintf("Air Temp %d%s", s.AirTemperature, unit),
		fmt.Sprintf("Pool Chlorinator %d%%", s.ChlorinatorPercent),
	}
	return append(lines, s.Messages...)
}

// Payloads returns the unframed payloads of one cycle: a keep-alive, the
// indicator bitmask, every display line and the optional key event
func (s Scenario) Payloads() ([][]byte, error) {
	payloads := [][]byte{protocol.FrameTypeKeepAlive.Bytes()}

	leds := append(protocol.FrameTypeIndicators.Bytes(), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(leds[2:], s.Indicators.Mask())
	payloads = append(payloads, leds)

	for _, line := range s.DisplayLines() {
		text, err := protocol.EncodeText(line)
		if err != nil {
			return nil, fmt.Errorf("encode display line %q: %w", line, err)
		}
		payloads = append(payloads, append(protocol.FrameTypeDisplayUpdate.Bytes(), text...))
	}

	if len(s.KeyCode) > 0 {
		payloads = append(payloads, append(protocol.FrameTypeKeyEvent.Bytes(), s.KeyCode...))
	}
	return payloads, nil
}

// Generator produces an endless stream of encoded frames for a scenario
type Generator struct {
	payloads     [][]byte
	corruptEvery int
	next         int
	count        uint64
}

// NewGenerator cycles through the scenario's frames. When corruptEvery is
// positive every corruptEvery-th frame carries a wrong checksum.
func NewGenerator(s Scenario, corruptEvery int) (*Generator, error) {
	payloads, err := s.Payloads()
	if err != nil {
		return nil, err
	}
	return &Generator{payloads: payloads, corruptEvery: corruptEvery}, nil
}

// CycleLen returns the number of frames in one scenario cycle
func (g *Generator) CycleLen() int {
	return len(g.payloads)
}

// Next returns the next encoded frame
func (g *Generator) Next() []byte {
	payload := g.payloads[g.next]
	g.next = (g.next + 1) % len(g.payloads)
	g.count++

	if g.corruptEvery > 0 && g.count%uint64(g.corruptEvery) == 0 {
		return protocol.EncodeFrameWithChecksum(payload, protocol.Checksum(payload)^0x00FF)
	}
	return protocol.EncodeFrame(payload)
}

// WriteCycles writes cycles full scenario cycles to w
func (g *Generator) WriteCycles(w io.Writer, cycles int) error {
	for i := 0; i < cycles*g.CycleLen(); i++ {
		if _, err := w.Write(g.Next()); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
	return nil
}
