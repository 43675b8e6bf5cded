// Package ai drives one seat of a match: it watches the engine's event
// stream, thinks for a human-ish delay, and submits actions through the
// same validated entry point as everyone else.
package ai

import (
	"fmt"
	"math/rand"
	"time"
)

// Difficulty selects how strong and how fast the AI plays.
type Difficulty string

const (
	Beginner Difficulty = "beginner"
	Easy     Difficulty = "easy"
	Normal   Difficulty = "normal"
	Hard     Difficulty = "hard"
	Expert   Difficulty = "expert"
	Mythic   Difficulty = "mythic"
)

// params bundles everything a difficulty tier tunes. Trait values are
// sampled uniformly from [traitMin, traitMax] on a 0-1 scale.
type params struct {
	traitMin      float64
	traitMax      float64
	baseDelay     time.Duration
	mistakeChance float64
	variability   float64
}

var difficultyParams = map[Difficulty]params{
	Beginner: {traitMin: 0.10, traitMax: 0.30, baseDelay: 2500 * time.Millisecond, mistakeChance: 0.25, variability: 0.8},
	Easy:     {traitMin: 0.20, traitMax: 0.40, baseDelay: 2000 * time.Millisecond, mistakeChance: 0.15, variability: 0.6},
	Normal:   {traitMin: 0.40, traitMax: 0.60, baseDelay: 1500 * time.Millisecond, mistakeChance: 0.08, variability: 0.4},
	Hard:     {traitMin: 0.60, traitMax: 0.80, baseDelay: 1200 * time.Millisecond, mistakeChance: 0.04, variability: 0.3},
	Expert:   {traitMin: 0.70, traitMax: 0.90, baseDelay: 1000 * time.Millisecond, mistakeChance: 0.02, variability: 0.2},
	Mythic:   {traitMin: 0.80, traitMax: 1.00, baseDelay: 800 * time.Millisecond, mistakeChance: 0.01, variability: 0.1},
}

func paramsFor(d Difficulty) (params, error) {
	p, ok := difficultyParams[d]
	if !ok {
		return params{}, fmt.Errorf("unknown difficulty %q", d)
	}
	return p, nil
}

// Personality holds the five traits that shade the AI's choices. Patience
// stretches think time; the others weight the heuristics.
type Personality struct {
	Aggressiveness float64
	RiskTolerance  float64
	Creativity     float64
	Patience       float64
	Adaptability   float64
}

// newPersonality samples each trait from the difficulty's range.
func newPersonality(rng *rand.Rand, p params) Personality {
	sample := func() float64 {
		return p.traitMin + rng.Float64()*(p.traitMax-p.traitMin)
	}
	return Personality{
		Aggressiveness: sample(),
		RiskTolerance:  sample(),
		Creativity:     sample(),
		Patience:       sample(),
		Adaptability:   sample(),
	}
}

// DecisionKind scales think time with how weighty the choice is.
type DecisionKind int

const (
	DecisionSimple DecisionKind = iota
	DecisionNormal
	DecisionComplex
	DecisionCritical
)

func (k DecisionKind) multiplier() float64 {
	switch k {
	case DecisionSimple:
		return 0.7
	case DecisionComplex:
		return 1.5
	case DecisionCritical:
		return 2.0
	default:
		return 1.0
	}
}
