package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/muurk/aqualogic/internal/state"
)

// ReadingKind identifies which state field a display line carries
type ReadingKind int

const (
	ReadingPoolTemperature ReadingKind = iota + 1
	ReadingAirTemperature
	ReadingChlorinator
)

func (k ReadingKind) String() string {
	switch k {
	case ReadingPoolTemperature:
		return "pool_temperature"
	case ReadingAirTemperature:
		return "air_temperature"
	case ReadingChlorinator:
		return "chlorinator_percent"
	default:
		return fmt.Sprintf("reading(%d)", int(k))
	}
}

// Reading is a value extracted from one display line
type Reading struct {
	Kind    ReadingKind
	Value   int
	Unit    state.TemperatureUnit
	HasUnit bool // Unit came from the line's suffix letter
}

// Apply stores the reading into s. Only the field named by Kind (and the
// temperature unit, when the line carried one) is touched.
func (r Reading) Apply(s *state.State) {
	switch r.Kind {
	case ReadingPoolTemperature:
		s.PoolTemperature = state.Known(r.Value)
	case ReadingAirTemperature:
		s.AirTemperature = state.Known(r.Value)
	case ReadingChlorinator:
		s.ChlorinatorPercent = state.Known(r.Value)
	default:
		return
	}
	if r.HasUnit {
		s.TemperatureUnit = r.Unit
	}
}

func (r Reading) String() string {
	if r.HasUnit {
		return fmt.Sprintf("%s=%d%s", r.Kind, r.Value, r.Unit)
	}
	return fmt.Sprintf("%s=%d", r.Kind, r.Value)
}

// displayPattern maps the first two tokens of a line to a reading
type displayPattern struct {
	first, second string
	kind          ReadingKind
	suffix        int // characters after the number: "°F" or "%"
}

var displayPatterns = []displayPattern{
	{"Pool", "Temp", ReadingPoolTemperature, 2},
	{"Air", "Temp", ReadingAirTemperature, 2},
	{"Pool", "Chlorinator", ReadingChlorinator, 1},
}

// ParseDisplayLine extracts a reading from a line of display text such as
// "Pool Temp 85°F" or "Pool Chlorinator 45%". Lines that match no pattern,
// or whose value is not a number once its suffix is removed, return false.
func ParseDisplayLine(text string) (Reading, bool) {
	tokens := strings.Fields(text)
	if len(tokens) < 3 {
		return Reading{}, false
	}

	for _, p := range displayPatterns {
		if tokens[0] != p.first || tokens[1] != p.second {
			continue
		}

		// Count characters, not bytes: '°' is two bytes in UTF-8
		value := []rune(tokens[2])
		if len(value) < p.suffix {
			return Reading{}, false
		}
		n, err := strconv.Atoi(string(value[:len(value)-p.suffix]))
		if err != nil {
			return Reading{}, false
		}

		r := Reading{Kind: p.kind, Value: n}
		if p.kind == ReadingChlorinator {
			if n < 0 || n > 100 {
				return Reading{}, false
			}
			return r, true
		}
		switch value[len(value)-1] {
		case 'F':
			r.Unit, r.HasUnit = state.Fahrenheit, true
		case 'C':
			r.Unit, r.HasUnit = state.Celsius, true
		}
		return r, true
	}
	return Reading{}, false
}
