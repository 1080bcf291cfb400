package normalize

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/rubric/internal/domain/model"
)

// Redistribution is one record rescaled toward a target total.
type Redistribution struct {
	Record        model.ScoreRecord
	OriginalTotal float64
	TargetTotal   float64
	AchievedTotal float64
	Factor        float64
	// Clamped names components whose scaled score left [0, max_score].
	Clamped []string
}

// Shortfall is target minus achieved total. Non-zero when clamping or
// rounding kept the record from its target.
func (r Redistribution) Shortfall() float64 {
	return r.TargetTotal - r.AchievedTotal
}

// Audit builds the audit attached to the rewritten record.
func (r Redistribution) Audit(runID string, at time.Time, target model.TargetDistribution, backup, baseline string) model.NormalizationAudit {
	return model.NormalizationAudit{
		RunID:             runID,
		RecordID:          r.Record.ID,
		NormalizedAt:      at.UTC(),
		Method:            model.MethodTiered,
		OriginalTotal:     r.OriginalTotal,
		TargetTotal:       r.TargetTotal,
		AchievedTotal:     r.AchievedTotal,
		Target:            target,
		AdjustmentFactor:  r.Factor,
		ClampedComponents: append([]string(nil), r.Clamped...),
		BackupLocation:    backup,
		BaselineLocation:  baseline,
	}
}

// Redistribute scales every component of rec by targetTotal / original
// total, rounds to one decimal and clamps to [0, max_score]. A record whose
// original total is zero or below keeps factor 1. The returned record's
// total is the sum of its new components, which may differ from
// targetTotal. rec is not modified.
func Redistribute(rec model.ScoreRecord, targetTotal float64) (Redistribution, error) {
	if err := rec.Validate(); err != nil {
		return Redistribution{}, err
	}
	if math.IsNaN(targetTotal) || math.IsInf(targetTotal, 0) {
		return Redistribution{}, fmt.Errorf("%w: %v for record %q", ErrInvalidTotal, targetTotal, rec.ID)
	}

	original := rec.Sum()
	factor := 1.0
	if original > 0 {
		factor = targetTotal / original
	}

	out := rec.Clone()
	var clamped []string
	for i, c := range out.Components {
		scaled := roundTenth(c.Score * factor)
		bounded := clip(scaled, 0, c.MaxScore)
		if bounded != scaled {
			clamped = append(clamped, c.Name)
		}
		out.Components[i].Score = bounded
	}
	out.Recompute()

	return Redistribution{
		Record:        out,
		OriginalTotal: original,
		TargetTotal:   targetTotal,
		AchievedTotal: out.TotalScore,
		Factor:        factor,
		Clamped:       clamped,
	}, nil
}

func roundTenth(x float64) float64 {
	return math.Round(x*10) / 10
}
