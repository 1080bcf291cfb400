// Package normalize reshapes a cohort of total scores toward a target
// distribution and pushes each new total back into its rubric components.
package normalize

import (
	"math"
	"sort"

	"github.com/okian/rubric/internal/domain/model"
)

// DefaultSkipTolerance is how far the cohort mean may sit from the target
// mean before a run is considered necessary.
const DefaultSkipTolerance = 2.0

// Distribution summarizes a cohort of totals.
type Distribution struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Describe computes count, mean, min and max. An empty cohort yields the
// zero Distribution.
func Describe(scores []float64) Distribution {
	if len(scores) == 0 {
		return Distribution{}
	}
	d := Distribution{Count: len(scores), Min: scores[0], Max: scores[0]}
	var sum float64
	for _, s := range scores {
		sum += s
		d.Min = math.Min(d.Min, s)
		d.Max = math.Max(d.Max, s)
	}
	d.Mean = sum / float64(len(scores))
	return d
}

// Satisfies reports whether the cohort already sits inside the target band:
// mean within tolerance, min and max inside the target range.
func (d Distribution) Satisfies(target model.TargetDistribution, tolerance float64) bool {
	if d.Count == 0 {
		return false
	}
	return math.Abs(d.Mean-target.Mean) <= tolerance &&
		d.Min >= target.Min &&
		d.Max <= target.Max
}

// Percentile returns the p-th percentile (0..100) using linear
// interpolation between closest ranks: rank = p/100 * (n-1) over the sorted
// values. The input is not modified.
func Percentile(scores []float64, p float64) float64 {
	if len(scores) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	p = clip(p, 0, 100)
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clip(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
