// Package scoring implements the opposition-score formula and the derived
// openness/compatibility signals used by the matching engine. All functions
// are pure: they operate on fixed-size answer vectors and never touch the
// datastore.
package scoring

import (
	"errors"
	"math"
)

const (
	// NumMatchingDimensions is the number of topic-specific opinion
	// dimensions used for pair scoring (question_number 1..10).
	NumMatchingDimensions = 10

	// NumAttitudeDimensions is the number of general-attitude dimensions
	// used for the openness screen (question_number 1..5).
	NumAttitudeDimensions = 5

	// MinSharedDimensions is the minimum number of dimensions that must be
	// answered by both participants for a pair score to be valid.
	MinSharedDimensions = 8

	// Opposition thresholds on the 0-4 scale.
	EchoChamberMax = 1.0 // below: too similar to spark discussion
	IdealMax       = 2.5 // above: too far apart for dialogue
)

// ErrInsufficientData is returned when fewer than MinSharedDimensions are
// populated on both sides of a pair. Callers treat the pair as too_similar
// and never match it.
var ErrInsufficientData = errors.New("scoring: insufficient shared dimensions")

// Decision classifies an opposition score.
type Decision string

const (
	TooSimilar Decision = "too_similar"
	IdealMatch Decision = "ideal_match"
	TooExtreme Decision = "too_extreme"
)

// Answers is a participant's responses on the 10 matching dimensions,
// indexed by question_number-1. A nil entry means the dimension is
// unanswered. Scores are on the -2..+2 scale.
type Answers [NumMatchingDimensions]*float64

// Complete reports whether every matching dimension is answered.
func (a Answers) Complete() bool {
	for _, v := range a {
		if v == nil {
			return false
		}
	}
	return true
}

// Weights holds the per-dimension weights, indexed by question_number-1.
type Weights [NumMatchingDimensions]float64

// UniformWeights returns a weight vector of all ones.
func UniformWeights() Weights {
	var w Weights
	for i := range w {
		w[i] = 1.0
	}
	return w
}

// Opposition computes the weighted mean absolute difference between two
// answer vectors:
//
//	score = sum(wi * |Ai - Bi|) / sum(wi)
//
// over the dimensions populated on both sides. The result is on the 0-4
// scale. Fewer than MinSharedDimensions shared answers (or a zero weight
// sum) yields ErrInsufficientData. The function is symmetric in a and b.
func Opposition(a, b Answers, w Weights) (float64, Decision, error) {
	var weightedDiffSum, totalWeight float64
	used := 0

	for i := 0; i < NumMatchingDimensions; i++ {
		if a[i] == nil || b[i] == nil {
			continue
		}
		diff := math.Abs(*a[i] - *b[i])
		weightedDiffSum += w[i] * diff
		totalWeight += w[i]
		used++
	}

	if used < MinSharedDimensions || totalWeight == 0 {
		return 0, TooSimilar, ErrInsufficientData
	}

	score := weightedDiffSum / totalWeight
	return score, DecisionFor(score), nil
}

// DecisionFor maps an opposition score to its decision band. Both band
// boundaries are inclusive on the ideal side: exactly 1.0 and exactly 2.5
// are ideal matches.
func DecisionFor(score float64) Decision {
	switch {
	case score < EchoChamberMax:
		return TooSimilar
	case score <= IdealMax:
		return IdealMatch
	default:
		return TooExtreme
	}
}
