package normalize

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/rubric/internal/domain/model"
)

// Tier is a percentile performance band.
type Tier int

// Tiers from strongest to weakest.
const (
	TierExceptional Tier = iota // at or above p90
	TierGood                    // p75 up to p90
	TierAverage                 // p25 up to p75
	TierNeedsHelp               // below p25
)

func (t Tier) String() string {
	switch t {
	case TierExceptional:
		return "exceptional"
	case TierGood:
		return "good"
	case TierAverage:
		return "average"
	case TierNeedsHelp:
		return "needs_help"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Default tier damping.
const (
	defaultExceptionalFactor = 0.2
	defaultGoodFactor        = 0.5
	defaultAverageFactor     = 1.0
	defaultNeedsHelpFactor   = 1.3

	defaultExceptionalCorrection = 0.1
	defaultGoodCorrection        = 0.5
)

// Thresholds are the tier cut points of a cohort.
type Thresholds struct {
	P90 float64 `json:"p90"`
	P75 float64 `json:"p75"`
	P25 float64 `json:"p25"`
}

// TierOf places a score in its band. Ties with a threshold fall into the
// higher band.
func (th Thresholds) TierOf(x float64) Tier {
	switch {
	case x >= th.P90:
		return TierExceptional
	case x >= th.P75:
		return TierGood
	case x >= th.P25:
		return TierAverage
	default:
		return TierNeedsHelp
	}
}

// Result is the output of one tiered normalization. Scores, Tiers and the
// input share positions.
type Result struct {
	Scores     []float64
	Tiers      []Tier
	Thresholds Thresholds
	Degenerate bool
	// Repaired counts positions moved by the rank repair pass.
	Repaired int
}

// Err returns ErrDegenerateInput for a degenerate cohort and nil otherwise.
func (r Result) Err() error {
	if r.Degenerate {
		return ErrDegenerateInput
	}
	return nil
}

// Option configures a Tiered normalizer.
type Option func(*Tiered)

// WithTierFactors overrides the first pass multipliers applied to each
// score's distance from its linear baseline.
func WithTierFactors(exceptional, good, average, needsHelp float64) Option {
	return func(t *Tiered) {
		if exceptional >= 0 && good >= 0 && average >= 0 && needsHelp >= 0 {
			t.factors = [4]float64{exceptional, good, average, needsHelp}
		}
	}
}

// WithMeanCorrection overrides the share of the second pass mean correction
// given to the two top tiers. Lower tiers always take the full correction.
func WithMeanCorrection(exceptional, good float64) Option {
	return func(t *Tiered) {
		if exceptional >= 0 && good >= 0 {
			t.correction[TierExceptional] = exceptional
			t.correction[TierGood] = good
		}
	}
}

// WithoutRankRepair disables the final monotone pass. The output may then
// order two records differently from their inputs.
func WithoutRankRepair() Option {
	return func(t *Tiered) {
		t.repairRanks = false
	}
}

// Tiered maps a cohort onto a target mean and range. Top performers are
// shielded from large moves and the weakest get amplified correction.
// Exact target mean is not guaranteed; callers should report the realized
// mean.
type Tiered struct {
	factors     [4]float64
	correction  [4]float64
	repairRanks bool
}

// NewTiered creates a normalizer with the default tier damping.
func NewTiered(opts ...Option) *Tiered {
	t := &Tiered{
		factors: [4]float64{
			defaultExceptionalFactor,
			defaultGoodFactor,
			defaultAverageFactor,
			defaultNeedsHelpFactor,
		},
		correction:  [4]float64{defaultExceptionalCorrection, defaultGoodCorrection, 1, 1},
		repairRanks: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Normalize returns one new total per input score, in input order, each in
// [target.Min, target.Max].
func (t *Tiered) Normalize(scores []float64, target model.TargetDistribution) (Result, error) {
	if err := target.Validate(); err != nil {
		return Result{}, err
	}
	n := len(scores)
	if n == 0 {
		return Result{}, ErrEmptyCohort
	}
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return Result{}, fmt.Errorf("score at position %d is not finite: %v", i, s)
		}
	}

	stats := Describe(scores)
	if stats.Min == stats.Max {
		out := make([]float64, n)
		tiers := make([]Tier, n)
		for i := range out {
			out[i] = target.Mean
			tiers[i] = TierAverage
		}
		return Result{Scores: out, Tiers: tiers, Degenerate: true}, nil
	}

	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	th := Thresholds{
		P90: percentileSorted(sorted, 90),
		P75: percentileSorted(sorted, 75),
		P25: percentileSorted(sorted, 25),
	}

	// Linear baseline: rescale onto the target range, shift to the target
	// mean, clip.
	span := stats.Max - stats.Min
	linear := make([]float64, n)
	for i, x := range scores {
		linear[i] = (x-stats.Min)/span*(target.Max-target.Min) + target.Min
	}
	shift := target.Mean - mean(linear)
	for i := range linear {
		linear[i] = clip(linear[i]+shift, target.Min, target.Max)
	}

	// First pass: move each score part of the way to its baseline.
	tiers := make([]Tier, n)
	out := make([]float64, n)
	for i, x := range scores {
		tiers[i] = th.TierOf(x)
		out[i] = clip(x+(linear[i]-x)*t.factors[tiers[i]], target.Min, target.Max)
	}

	// Second pass: damped mean correction using first pass tiers.
	adjust := target.Mean - mean(out)
	for i := range out {
		out[i] = clip(out[i]+adjust*t.correction[tiers[i]], target.Min, target.Max)
	}

	res := Result{Scores: out, Tiers: tiers, Thresholds: th}
	if t.repairRanks {
		res.Repaired = repairRanks(scores, out, target)
	}
	return res, nil
}

// repairRanks makes out non-decreasing in the order of scores using pool
// adjacent violators. Pooled blocks take their average so the cohort sum and
// bounds are kept. Returns the number of positions changed.
func repairRanks(scores, out []float64, target model.TargetDistribution) int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })

	type block struct {
		sum   float64
		count int
	}
	avg := func(b block) float64 { return b.sum / float64(b.count) }

	blocks := make([]block, 0, len(order))
	for _, idx := range order {
		blocks = append(blocks, block{sum: out[idx], count: 1})
		for len(blocks) > 1 && avg(blocks[len(blocks)-2]) > avg(blocks[len(blocks)-1]) {
			last := blocks[len(blocks)-1]
			blocks = blocks[:len(blocks)-1]
			blocks[len(blocks)-1].sum += last.sum
			blocks[len(blocks)-1].count += last.count
		}
	}

	changed := 0
	pos := 0
	for _, b := range blocks {
		v := clip(avg(b), target.Min, target.Max)
		for k := 0; k < b.count; k++ {
			idx := order[pos]
			if b.count > 1 && out[idx] != v {
				out[idx] = v
				changed++
			}
			pos++
		}
	}
	return changed
}
