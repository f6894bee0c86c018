package state

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Indicator identifies one panel LED reported by the controller.
// The numeric value is the bit position in the wire bitmask.
type Indicator uint8

// Indicator bit positions (AQ-CO-SERIAL LED frame, little-endian uint32)
const (
	IndicatorHeater1 Indicator = iota
	IndicatorValve3
	IndicatorCheckSystem
	IndicatorPool
	IndicatorSpa
	IndicatorFilter
	IndicatorLights
	IndicatorAux1
	IndicatorAux2
	IndicatorService
	IndicatorAux3
	IndicatorAux4
	IndicatorAux5
	IndicatorAux6
	IndicatorValve4
	IndicatorSpillover
	IndicatorSystemOff
	IndicatorAux7
	IndicatorAux8
	IndicatorAux9
	IndicatorAux10
	IndicatorAux11
	IndicatorAux12
	IndicatorAux13
	IndicatorAux14
	IndicatorSuperChlorinate

	// IndicatorCount is the number of known indicators
	IndicatorCount = int(IndicatorSuperChlorinate) + 1
)

var indicatorNames = [IndicatorCount]string{
	"HEATER_1",
	"VALVE_3",
	"CHECK_SYSTEM",
	"POOL",
	"SPA",
	"FILTER",
	"LIGHTS",
	"AUX_1",
	"AUX_2",
	"SERVICE",
	"AUX_3",
	"AUX_4",
	"AUX_5",
	"AUX_6",
	"VALVE_4",
	"SPILLOVER",
	"SYSTEM_OFF",
	"AUX_7",
	"AUX_8",
	"AUX_9",
	"AUX_10",
	"AUX_11",
	"AUX_12",
	"AUX_13",
	"AUX_14",
	"SUPER_CHLORINATE",
}

// knownMask covers bits 0-25; anything above is reserved on the wire
const knownMask uint32 = 1<<IndicatorCount - 1

// String returns the upper-case indicator name (e.g. "FILTER")
func (i Indicator) String() string {
	if int(i) < IndicatorCount {
		return indicatorNames[i]
	}
	return fmt.Sprintf("Indicator(%d)", uint8(i))
}

// Valid reports whether i is one of the known indicators
func (i Indicator) Valid() bool {
	return int(i) < IndicatorCount
}

// AllIndicators returns every known indicator in bit order
func AllIndicators() []Indicator {
	all := make([]Indicator, IndicatorCount)
	for i := range all {
		all[i] = Indicator(i)
	}
	return all
}

// ParseIndicator looks up an indicator by name. Matching ignores case and
// accepts '-' or ' ' in place of '_' so "aux-1" and "Super Chlorinate" work.
func ParseIndicator(name string) (Indicator, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	for i, n := range indicatorNames {
		if n == normalized {
			return Indicator(i), nil
		}
	}
	return 0, fmt.Errorf("unknown indicator %q", name)
}

// IndicatorSet is the set of active indicators. The zero value is empty.
type IndicatorSet struct {
	bits uint32
}

// IndicatorSetFromMask builds a set from the wire bitmask. Reserved bits are dropped.
func IndicatorSetFromMask(mask uint32) IndicatorSet {
	return IndicatorSet{bits: mask & knownMask}
}

// NewIndicatorSet returns a set containing the given indicators
func NewIndicatorSet(indicators ...Indicator) IndicatorSet {
	var s IndicatorSet
	for _, i := range indicators {
		s = s.With(i)
	}
	return s
}

// Has reports whether indicator i is active
func (s IndicatorSet) Has(i Indicator) bool {
	if !i.Valid() {
		return false
	}
	return s.bits&(1<<i) != 0
}

// With returns a copy of s with i set
func (s IndicatorSet) With(i Indicator) IndicatorSet {
	if i.Valid() {
		s.bits |= 1 << i
	}
	return s
}

// Without returns a copy of s with i cleared
func (s IndicatorSet) Without(i Indicator) IndicatorSet {
	if i.Valid() {
		s.bits &^= 1 << i
	}
	return s
}

// Active lists the active indicators in bit order
func (s IndicatorSet) Active() []Indicator {
	active := make([]Indicator, 0, IndicatorCount)
	for i := 0; i < IndicatorCount; i++ {
		if s.Has(Indicator(i)) {
			active = append(active, Indicator(i))
		}
	}
	return active
}

// Len returns the number of active indicators
func (s IndicatorSet) Len() int {
	return len(s.Active())
}

// Empty reports whether no indicator is active
func (s IndicatorSet) Empty() bool {
	return s.bits == 0
}

// Mask returns the wire encoding of the set. Only the frame encoder needs this.
func (s IndicatorSet) Mask() uint32 {
	return s.bits
}

func (s IndicatorSet) String() string {
	active := s.Active()
	names := make([]string, len(active))
	for i, ind := range active {
		names[i] = ind.String()
	}
	return "[" + strings.Join(names, " ") + "]"
}

// MarshalJSON encodes the set as a list of indicator names
func (s IndicatorSet) MarshalJSON() ([]byte, error) {
	active := s.Active()
	names := make([]string, len(active))
	for i, ind := range active {
		names[i] = ind.String()
	}
	return json.Marshal(names)
}

// UnmarshalJSON accepts the list-of-names form produced by MarshalJSON
func (s *IndicatorSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var set IndicatorSet
	for _, n := range names {
		ind, err := ParseIndicator(n)
		if err != nil {
			return err
		}
		set = set.With(ind)
	}
	*s = set
	return nil
}
