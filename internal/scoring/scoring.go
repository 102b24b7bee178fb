// Package scoring converts tracked time into points.
package scoring

import (
	"math"
	"time"

	"github.com/verte-zerg/dopabank/internal/model"
)

// SecondsPerPoint is the base earning rate: one point per five seconds.
const SecondsPerPoint = 5.0

// DefaultMultiplier applies to unrecognized difficulty tags.
const DefaultMultiplier = 1.0

var multipliers = map[model.Difficulty]float64{
	model.DifficultyVeryEasy:     0.5,
	model.DifficultyEasy:         0.8,
	model.DifficultyStandard:     1.0,
	model.DifficultyHigh:         1.2,
	model.DifficultyHard:         1.5,
	model.DifficultyCatastrophic: 2.0,
}

// Score is the breakdown of a point award.
type Score struct {
	BasePoints  float64
	Multiplier  float64
	FinalPoints int
}

// Multiplier returns the scoring multiplier for d, falling back to
// DefaultMultiplier for unknown tags.
func Multiplier(d model.Difficulty) float64 {
	if m, ok := multipliers[d]; ok {
		return m
	}
	return DefaultMultiplier
}

// Compute scores elapsedSeconds of work at difficulty d. Negative elapsed
// time (clock rollback) is clamped to zero.
func Compute(elapsedSeconds float64, d model.Difficulty) Score {
	if elapsedSeconds < 0 || math.IsNaN(elapsedSeconds) {
		elapsedSeconds = 0
	}
	base := elapsedSeconds / SecondsPerPoint
	mult := Multiplier(d)
	return Score{
		BasePoints:  base,
		Multiplier:  mult,
		FinalPoints: int(math.Trunc(base * mult)),
	}
}

// ComputeDuration is Compute for a time.Duration.
func ComputeDuration(elapsed time.Duration, d model.Difficulty) Score {
	return Compute(elapsed.Seconds(), d)
}
