// Package models defines the core domain entities: sensor readings, deviations, and snapshots.
package models

import (
	"errors"
	"fmt"
)

// Polarity determines the sign with which a sensor's deviation contributes
// to the composite score.
type Polarity string

const (
	// PolarityPrimary sensors contribute their deviation as-is. A busy pizza
	// shop during odd hours pushes the index up.
	PolarityPrimary Polarity = "primary"
	// PolarityInverse sensors contribute with the sign flipped. A quiet bar
	// implies people are still at their desks.
	PolarityInverse Polarity = "inverse"
)

// ParsePolarity converts a config string into a Polarity.
func ParsePolarity(s string) (Polarity, error) {
	switch Polarity(s) {
	case PolarityPrimary, PolarityInverse:
		return Polarity(s), nil
	default:
		return "", fmt.Errorf("unknown polarity %q", s)
	}
}

// SensorDefinition is the static configuration of one monitored venue.
type SensorDefinition struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Query    string   `json:"query"`
	Polarity Polarity `json:"polarity"`
	Weight   float64  `json:"weight"`
}

// Validate checks sensor definition field constraints.
func (d *SensorDefinition) Validate() error {
	if d.ID == "" {
		return errors.New("sensor ID must not be empty")
	}
	if d.Label == "" {
		return errors.New("sensor label must not be empty")
	}
	if d.Query == "" {
		return errors.New("sensor query must not be empty")
	}
	if d.Polarity != PolarityPrimary && d.Polarity != PolarityInverse {
		return fmt.Errorf("sensor polarity must be %q or %q", PolarityPrimary, PolarityInverse)
	}
	if d.Weight <= 0 {
		return errors.New("sensor weight must be positive")
	}
	return nil
}

// SensorReading is one fetch attempt for one sensor. Live and Usual are nil
// when the provider had no value (venue closed, no baseline for this hour).
// A nil value is "no data", which is not the same thing as zero.
type SensorReading struct {
	SensorID string `json:"sensor_id"`
	Live     *int   `json:"live"`
	Usual    *int   `json:"usual"`

	// Hourly is today's 24-slot baseline, kept for the dashboard only.
	Hourly []int `json:"hourly,omitempty"`
}

// Determinate reports whether the reading can produce a deviation: both
// values present and a non-zero baseline to divide by.
func (r *SensorReading) Determinate() bool {
	return r.Live != nil && r.Usual != nil && *r.Usual != 0
}

// Deviation is a sensor's signed percent departure from its baseline, with
// polarity already applied.
type Deviation struct {
	SensorID string  `json:"sensor_id"`
	Label    string  `json:"label"`
	Percent  float64 `json:"percent"`
	Live     int     `json:"live"`
	Usual    int     `json:"usual"`
}

// IntPtr is a convenience for building optional reading values.
func IntPtr(v int) *int {
	return &v
}
