package engine

import "github.com/rewired-gh/pizzaindex/internal/models"

// Classify maps a composite score to exactly one alert level. Bands are
// evaluated from the most extreme inward; boundaries adjacent to NORMAL
// (±10) are NORMAL, all other boundaries belong to the higher-severity
// band. There is no deeper band below QUIET.
func Classify(score float64) models.AlertLevel {
	switch {
	case score >= 50:
		return models.LevelRed
	case score >= 25:
		return models.LevelElevated
	case score > 10:
		return models.LevelWatch
	case score >= -10:
		return models.LevelNormal
	default:
		return models.LevelQuiet
	}
}
