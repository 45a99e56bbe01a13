// Package engine computes the composite busyness index. It is pure: it
// takes a fully collected batch of readings and returns a value, with no
// I/O and no shared state. The host owns fetching, scheduling, and storage.
package engine

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/pizzaindex/internal/models"
)

// ErrInsufficientData is returned when no sensor in the batch produced a
// determinate reading. Zero is a meaningful "normal" score, so an empty
// batch must surface as a distinct outcome rather than a numeric 0.
var ErrInsufficientData = errors.New("no determinate sensor readings in batch")

// Deviate converts one reading into a signed percent deviation from its
// baseline, honoring the sensor's polarity. The second return is false for
// indeterminate readings: live or usual absent, or a zero baseline
// (dividing by a zero baseline is undefined, not infinite).
func Deviate(def models.SensorDefinition, r models.SensorReading) (models.Deviation, bool) {
	if !r.Determinate() {
		return models.Deviation{}, false
	}
	live, usual := *r.Live, *r.Usual
	pct := float64(live-usual) / float64(usual) * 100
	if def.Polarity == models.PolarityInverse {
		pct = -pct
	}
	return models.Deviation{
		SensorID: def.ID,
		Label:    def.Label,
		Percent:  pct,
		Live:     live,
		Usual:    usual,
	}, true
}

// Composite combines deviations into a single weighted arithmetic mean.
// A sensor missing from weights contributes with weight 1.
func Composite(deviations []models.Deviation, weights map[string]float64) (float64, error) {
	if len(deviations) == 0 {
		return 0, ErrInsufficientData
	}
	var num, den float64
	for _, d := range deviations {
		w, ok := weights[d.SensorID]
		if !ok {
			w = 1
		}
		num += d.Percent * w
		den += w
	}
	return num / den, nil
}

// Assemble runs a batch of readings through deviation, aggregation, and
// classification, producing an immutable snapshot for the given capture
// time. Indeterminate sensors are omitted, not errors; the batch fails only
// when every sensor is indeterminate.
//
// Definitions are walked in order and readings are matched by sensor ID, so
// the result is identical under any permutation of the batch. Readings for
// unknown sensor IDs are ignored.
func Assemble(defs []models.SensorDefinition, readings []models.SensorReading, at time.Time) (*models.Snapshot, error) {
	byID := make(map[string]models.SensorReading, len(readings))
	for _, r := range readings {
		byID[r.SensorID] = r
	}

	deviations := make([]models.Deviation, 0, len(defs))
	weights := make(map[string]float64, len(defs))
	for _, def := range defs {
		r, ok := byID[def.ID]
		if !ok {
			continue
		}
		d, ok := Deviate(def, r)
		if !ok {
			continue
		}
		deviations = append(deviations, d)
		weights[def.ID] = def.Weight
	}

	score, err := Composite(deviations, weights)
	if err != nil {
		return nil, err
	}

	return &models.Snapshot{
		ID:             uuid.New().String(),
		Timestamp:      at,
		Deviations:     deviations,
		CompositeScore: score,
		Level:          Classify(score),
	}, nil
}
