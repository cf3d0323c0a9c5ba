package scoring

import "math"

const (
	// OppositionPeak is the midpoint of the ideal band [1.0, 2.5]; pairs
	// scoring exactly here get full opposition quality.
	OppositionPeak = 1.75

	// OppositionHalfWidth is the distance from the peak to either edge of
	// the ideal band.
	OppositionHalfWidth = 0.75

	// Composite weights for the compatibility ranking.
	oppositionWeight = 3.0
	opennessWeight   = 2.0
	avgOpenWeight    = 0.5
)

// Compatibility ranks an ideal-match pair by a composite of how close the
// opposition score sits to the band midpoint, how similar the two openness
// scores are, and how open-minded the pair is on average. Higher is better.
func Compatibility(opposition, openA, openB float64) float64 {
	oppositionQuality := 1.0 - math.Abs(opposition-OppositionPeak)/OppositionHalfWidth
	opennessCompat := math.Max(0, 2.0-math.Abs(openA-openB))
	avgOpenness := (openA + openB) / 2.0

	return oppositionWeight*oppositionQuality +
		opennessWeight*opennessCompat +
		avgOpenWeight*avgOpenness
}
