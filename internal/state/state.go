// Package state holds the live model of the pool controller: temperatures,
// chlorinator output, temperature unit and panel indicators.
//
// A Store owns the current State. One goroutine (the frame dispatcher)
// writes through Store.Update; any number of readers take copies with
// Store.Snapshot or receive them from Store.Subscribe.
package state

import (
	"encoding/json"
	"strconv"
	"time"
)

// TemperatureUnit is the unit the controller displays temperatures in
type TemperatureUnit int

const (
	Celsius TemperatureUnit = iota
	Fahrenheit
)

func (u TemperatureUnit) String() string {
	if u == Fahrenheit {
		return "F"
	}
	return "C"
}

// MarshalJSON encodes the unit as "C" or "F"
func (u TemperatureUnit) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON accepts "C"/"F" (case-insensitive)
func (u *TemperatureUnit) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "F", "f":
		*u = Fahrenheit
	default:
		*u = Celsius
	}
	return nil
}

// Reading is an integer value that may not have been observed yet
type Reading struct {
	Value int
	Valid bool
}

// Known returns a valid reading holding v
func Known(v int) Reading {
	return Reading{Value: v, Valid: true}
}

// Get returns the value and whether it has been observed
func (r Reading) Get() (int, bool) {
	return r.Value, r.Valid
}

// String returns the value, or "--" while unknown (the panel's own placeholder)
func (r Reading) String() string {
	if !r.Valid {
		return "--"
	}
	return strconv.Itoa(r.Value)
}

// MarshalJSON encodes an unknown reading as null
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON decodes null as unknown
func (r *Reading) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Reading{}
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Known(v)
	return nil
}

// State is a snapshot of the controller as last observed on the wire.
// Values of this type are copies; mutating one does not affect the Store.
type State struct {
	AirTemperature     Reading         `json:"air_temperature"`
	PoolTemperature    Reading         `json:"pool_temperature"`
	ChlorinatorPercent Reading         `json:"chlorinator_percent"`
	TemperatureUnit    TemperatureUnit `json:"temperature_unit"`
	Indicators         IndicatorSet    `json:"indicators"`

	// Version increases by one on every change; zero means nothing observed yet
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsIndicatorActive reports whether the given panel indicator is lit
func (s State) IsIndicatorActive(i Indicator) bool {
	return s.Indicators.Has(i)
}

// sameReadings compares the observed fields, ignoring Version and UpdatedAt
func sameReadings(a, b State) bool {
	return a.AirTemperature == b.AirTemperature &&
		a.PoolTemperature == b.PoolTemperature &&
		a.ChlorinatorPercent == b.ChlorinatorPercent &&
		a.TemperatureUnit == b.TemperatureUnit &&
		a.Indicators == b.Indicators
}
