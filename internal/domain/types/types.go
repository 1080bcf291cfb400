// Package types contains common types used across the application
package types

import (
	"sort"

	"github.com/okian/rubric/internal/domain/model"
)

// Entry is a ranked record summary.
type Entry struct {
	Rank          int      `json:"rank"`
	RecordID      string   `json:"record_id"`
	TotalScore    float64  `json:"total_score"`
	MaxTotal      float64  `json:"max_total"`
	Partial       bool     `json:"partial,omitempty"`
	Normalized    bool     `json:"normalized"`
	OriginalTotal *float64 `json:"original_total,omitempty"`
}

// Stats describes the current cohort against its target.
type Stats struct {
	Course       string                   `json:"course"`
	Count        int                      `json:"count"`
	Invalid      int                      `json:"invalid"`
	Mean         float64                  `json:"mean"`
	Min          float64                  `json:"min"`
	Max          float64                  `json:"max"`
	Target       model.TargetDistribution `json:"target"`
	WithinTarget bool                     `json:"within_target"`
	Normalized   int                      `json:"normalized"`
	HasBaseline  bool                     `json:"has_baseline"`
}

// Rank orders records by total, highest first, ties broken by id. Equal
// totals share a rank.
func Rank(records []model.ScoreRecord) []Entry {
	sorted := make([]model.ScoreRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TotalScore != sorted[j].TotalScore {
			return sorted[i].TotalScore > sorted[j].TotalScore
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := make([]Entry, len(sorted))
	for i, r := range sorted {
		rank := i + 1
		if i > 0 && r.TotalScore == sorted[i-1].TotalScore {
			rank = out[i-1].Rank
		}
		e := Entry{
			Rank:       rank,
			RecordID:   r.ID,
			TotalScore: r.TotalScore,
			MaxTotal:   r.MaxTotal(),
			Partial:    r.Partial,
			Normalized: r.Normalization != nil,
		}
		if r.Normalization != nil {
			orig := r.Normalization.OriginalTotal
			e.OriginalTotal = &orig
		}
		out[i] = e
	}
	return out
}
