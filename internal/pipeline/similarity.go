package pipeline

import (
	"math"
	"strings"
	"time"
)

// Weights are the composite score components. They must sum to 1.
type Weights struct {
	Title    float64
	Location float64
	Time     float64
}

var DefaultWeights = Weights{
	Title:    0.6,
	Location: 0.2,
	Time:     0.2,
}

// SequenceRatio is a Ratcliff/Obershelp character-sequence similarity over
// lower-cased, whitespace-collapsed text: 2M / (len(a) + len(b)) where M is
// the total length of recursively matched blocks. Symmetric in its arguments.
func SequenceRatio(a, b string) float64 {
	left := []rune(normalizeForMatch(a))
	right := []rune(normalizeForMatch(b))
	if len(left) == 0 && len(right) == 0 {
		return 1
	}
	if len(left) == 0 || len(right) == 0 {
		return 0
	}
	matched := matchingRunes(left, right)
	return 2 * float64(matched) / float64(len(left)+len(right))
}

func matchingRunes(a, b []rune) int {
	aStart, bStart, size := longestCommonBlock(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingRunes(a[:aStart], b[:bStart]) +
		matchingRunes(a[aStart+size:], b[bStart+size:])
}

func longestCommonBlock(a, b []rune) (int, int, int) {
	var bestA, bestB, bestSize int
	// lengths[j] tracks the common-suffix length ending at a[i-1], b[j-1].
	lengths := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		previous := 0
		for j := 1; j <= len(b); j++ {
			current := lengths[j]
			if a[i-1] == b[j-1] {
				lengths[j] = previous + 1
				if lengths[j] > bestSize {
					bestSize = lengths[j]
					bestA = i - bestSize
					bestB = j - bestSize
				}
			} else {
				lengths[j] = 0
			}
			previous = current
		}
	}
	return bestA, bestB, bestSize
}

func normalizeForMatch(input string) string {
	return strings.Join(strings.Fields(strings.ToLower(input)), " ")
}

// TimeProximity decays linearly from 1 at zero delta to 0 at the window
// boundary; invariant to argument order.
func TimeProximity(a, b time.Time, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	delta := math.Abs(a.Sub(b).Seconds())
	proximity := 1 - delta/window.Seconds()
	if proximity < 0 {
		return 0
	}
	return proximity
}

// CompositeScore blends the three components; the result is clamped to [0, 1].
func CompositeScore(titleSim, locationSim, timeSim float64, w Weights) float64 {
	score := w.Title*titleSim + w.Location*locationSim + w.Time*timeSim
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

// BlendAIScore folds an AI pairwise judgment into the composite at a fixed
// weight; it never replaces the composite outright.
func BlendAIScore(composite, aiScore, blendWeight float64) float64 {
	if blendWeight < 0 {
		blendWeight = 0
	}
	if blendWeight > 1 {
		blendWeight = 1
	}
	blended := (1-blendWeight)*composite + blendWeight*aiScore
	switch {
	case blended < 0:
		return 0
	case blended > 1:
		return 1
	default:
		return blended
	}
}
