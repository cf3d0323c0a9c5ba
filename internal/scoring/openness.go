package scoring

// ExtremistThreshold is the openness score below which a participant is
// flagged as extremist and excluded from matching. Scores are on the -2..+2
// scale; below neutral counts as closed-minded.
const ExtremistThreshold = 0.0

// OpennessScore averages the general-attitude answers into a single
// openness signal. Returns 0 and false when no attitude answers exist.
func OpennessScore(attitude []float64) (float64, bool) {
	if len(attitude) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, s := range attitude {
		sum += s
	}
	return sum / float64(len(attitude)), true
}

// IsExtremist reports whether an openness score falls below the screening
// threshold.
func IsExtremist(openness float64) bool {
	return openness < ExtremistThreshold
}

// OpennessCategory buckets an openness score into a human-readable label
// for the participant-facing opinions view.
func OpennessCategory(openness float64) string {
	switch {
	case openness >= 1.5:
		return "very open-minded"
	case openness >= 0.5:
		return "open-minded"
	case openness >= 0.0:
		return "moderately open"
	case openness >= -0.5:
		return "somewhat closed"
	default:
		return "very closed"
	}
}
