package models

import (
	"errors"
	"time"
)

// AlertLevel classifies a composite score into a discrete severity band.
type AlertLevel string

const (
	LevelRed      AlertLevel = "RED"
	LevelElevated AlertLevel = "ELEVATED"
	LevelWatch    AlertLevel = "WATCH"
	LevelNormal   AlertLevel = "NORMAL"
	LevelQuiet    AlertLevel = "QUIET"
)

// Snapshot is the immutable result of one polling cycle: the composite
// score over all determinate sensors, its classification, and the
// per-sensor deviations that produced it. A snapshot is superseded, never
// mutated; only the latest one is persisted.
type Snapshot struct {
	ID             string      `json:"id"`
	Timestamp      time.Time   `json:"timestamp"`
	Deviations     []Deviation `json:"deviations"`
	CompositeScore float64     `json:"composite_score"`
	Level          AlertLevel  `json:"alert_level"`
}

// Validate checks snapshot field constraints.
func (s *Snapshot) Validate() error {
	if s.ID == "" {
		return errors.New("snapshot ID must not be empty")
	}
	if s.Timestamp.IsZero() {
		return errors.New("snapshot timestamp must be set")
	}
	if s.Timestamp.After(time.Now().Add(time.Minute)) {
		return errors.New("snapshot timestamp must not be in the future")
	}
	if len(s.Deviations) == 0 {
		return errors.New("snapshot must contain at least one deviation")
	}
	switch s.Level {
	case LevelRed, LevelElevated, LevelWatch, LevelNormal, LevelQuiet:
	default:
		return errors.New("snapshot alert level is not a known level")
	}
	for i := range s.Deviations {
		if s.Deviations[i].SensorID == "" {
			return errors.New("deviation sensor ID must not be empty")
		}
	}
	return nil
}

// Place is a resolved venue from the popularity provider, cached so
// restarts skip the discovery step.
type Place struct {
	SensorID   string    `json:"sensor_id"`
	PlaceID    string    `json:"place_id"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	Rating     float64   `json:"rating"`
	ResolvedAt time.Time `json:"resolved_at"`
}
