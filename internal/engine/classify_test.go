package engine

import (
	"math"
	"testing"

	"github.com/rewired-gh/pizzaindex/internal/models"
)

func TestClassifyBands(t *testing.T) {
	tests := []struct {
		score float64
		want  models.AlertLevel
	}{
		{100, models.LevelRed},
		{50.001, models.LevelRed},
		{50, models.LevelRed}, // boundary belongs to the higher-severity band
		{49.999, models.LevelElevated},
		{25.001, models.LevelElevated},
		{25, models.LevelElevated}, // boundary belongs to the higher-severity band
		{24.999, models.LevelWatch},
		{10.001, models.LevelWatch},
		{10, models.LevelNormal}, // boundaries adjacent to NORMAL are NORMAL
		{0, models.LevelNormal},
		{-10, models.LevelNormal}, // boundaries adjacent to NORMAL are NORMAL
		{-10.001, models.LevelQuiet},
		{-25, models.LevelQuiet},
		{-75, models.LevelQuiet}, // no deeper band below -25
		{-1000, models.LevelQuiet},
	}

	for _, tt := range tests {
		if got := Classify(tt.score); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestClassifyTotality(t *testing.T) {
	known := map[models.AlertLevel]bool{
		models.LevelRed:      true,
		models.LevelElevated: true,
		models.LevelWatch:    true,
		models.LevelNormal:   true,
		models.LevelQuiet:    true,
	}
	for score := -200.0; score <= 200.0; score += 0.25 {
		if got := Classify(score); !known[got] {
			t.Fatalf("Classify(%v) returned unknown level %q", score, got)
		}
	}
	for _, score := range []float64{math.SmallestNonzeroFloat64, -math.SmallestNonzeroFloat64, math.MaxFloat64, -math.MaxFloat64} {
		if got := Classify(score); !known[got] {
			t.Fatalf("Classify(%v) returned unknown level %q", score, got)
		}
	}
}
