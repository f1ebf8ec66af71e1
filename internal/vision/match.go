package vision

import (
	"fmt"
	"math"

	"github.com/your-org/presensi/internal/models"
)

// DefaultMatchThreshold is the distance below which a live descriptor is
// accepted as the roster entry.
const DefaultMatchThreshold = 0.45

// EuclideanDistance returns the L2 distance between two descriptors.
func EuclideanDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("descriptor length mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Match returns the roster entry closest to sample whose distance is
// strictly below threshold. Entries without a descriptor, or with one of a
// different length, are skipped. On equal distances the earlier entry wins.
// An empty result carries the best distance seen, or +Inf when nothing was
// comparable.
func Match(sample []float32, roster []models.RosterEntry, threshold float64) models.MatchResult {
	best := models.MatchResult{Distance: math.Inf(1)}
	if len(sample) == 0 {
		return best
	}

	bestIdx := -1
	for i := range roster {
		if !roster[i].HasDescriptor() {
			continue
		}
		d, err := EuclideanDistance(sample, roster[i].Descriptor)
		if err != nil {
			continue
		}
		if d < best.Distance {
			best.Distance = d
			bestIdx = i
		}
	}

	if bestIdx >= 0 && best.Distance < threshold {
		entry := roster[bestIdx]
		best.Entry = &entry
	}
	return best
}
