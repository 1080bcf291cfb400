// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// totalTolerance absorbs one-decimal rounding when a stored total is checked
// against the sum of its components.
const totalTolerance = 0.05

// MethodTiered names the normalization method recorded in audits.
const MethodTiered = "tiered_statistical_normalization"

// ComponentScore is the score for one rubric criterion.
type ComponentScore struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score"`
	Comment  string  `json:"comment"`
}

// ScoreRecord is one graded submission. TotalScore always equals the sum of
// the component scores; call Recompute after mutating components.
type ScoreRecord struct {
	ID            string              `json:"id"`
	Course        string              `json:"course,omitempty"`
	Components    []ComponentScore    `json:"components"`
	TotalScore    float64             `json:"total_score"`
	GradedAt      time.Time           `json:"graded_at,omitempty"`
	Model         string              `json:"model,omitempty"`
	Partial       bool                `json:"partial,omitempty"`
	Normalization *NormalizationAudit `json:"normalization,omitempty"`
}

// TargetDistribution holds the policy inputs for normalization.
type TargetDistribution struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Validate rejects targets the normalizer cannot satisfy.
func (t TargetDistribution) Validate() error {
	for _, v := range []float64{t.Mean, t.Min, t.Max} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value in %+v", ErrConfig, t)
		}
	}
	if t.Min >= t.Max {
		return fmt.Errorf("%w: min %.2f must be below max %.2f", ErrConfig, t.Min, t.Max)
	}
	if t.Mean < t.Min || t.Mean > t.Max {
		return fmt.Errorf("%w: mean %.2f outside [%.2f, %.2f]", ErrConfig, t.Mean, t.Min, t.Max)
	}
	return nil
}

// NormalizationAudit is attached to a record rewritten by a normalization
// run. It is written once and never updated; a later run replaces it with a
// fresh audit of its own.
type NormalizationAudit struct {
	RunID             string             `json:"run_id"`
	RecordID          string             `json:"record_id"`
	NormalizedAt      time.Time          `json:"normalized_at"`
	Method            string             `json:"method"`
	OriginalTotal     float64            `json:"original_total"`
	TargetTotal       float64            `json:"target_total"`
	AchievedTotal     float64            `json:"achieved_total"`
	Target            TargetDistribution `json:"target_distribution"`
	AdjustmentFactor  float64            `json:"adjustment_factor"`
	ClampedComponents []string           `json:"clamped_components,omitempty"`
	BackupLocation    string             `json:"backup_location"`
	BaselineLocation  string             `json:"baseline_location,omitempty"`
}

// Sum adds component scores in order.
func (r *ScoreRecord) Sum() float64 {
	var total float64
	for _, c := range r.Components {
		total += c.Score
	}
	return total
}

// MaxTotal is the highest total the rubric allows.
func (r *ScoreRecord) MaxTotal() float64 {
	var total float64
	for _, c := range r.Components {
		total += c.MaxScore
	}
	return total
}

// Recompute sets TotalScore from the components.
func (r *ScoreRecord) Recompute() {
	r.TotalScore = r.Sum()
}

// Clone returns a deep copy.
func (r ScoreRecord) Clone() ScoreRecord {
	out := r
	out.Components = append([]ComponentScore(nil), r.Components...)
	if r.Normalization != nil {
		audit := *r.Normalization
		audit.ClampedComponents = append([]string(nil), r.Normalization.ClampedComponents...)
		out.Normalization = &audit
	}
	return out
}

// Component returns the component with the given name.
func (r *ScoreRecord) Component(name string) (ComponentScore, bool) {
	for _, c := range r.Components {
		if c.Name == name {
			return c, true
		}
	}
	return ComponentScore{}, false
}

// Validate checks the record against the schema. Every failure is a
// *DataError.
func (r *ScoreRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return dataErrorf("", "missing id")
	}
	if len(r.Components) == 0 {
		return dataErrorf(r.ID, "no components")
	}
	seen := make(map[string]struct{}, len(r.Components))
	for i, c := range r.Components {
		if strings.TrimSpace(c.Name) == "" {
			return dataErrorf(r.ID, "component %d has no name", i)
		}
		if _, dup := seen[c.Name]; dup {
			return dataErrorf(r.ID, "duplicate component %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if !(c.MaxScore > 0) || math.IsInf(c.MaxScore, 0) {
			return dataErrorf(r.ID, "component %q has invalid max_score %v", c.Name, c.MaxScore)
		}
		if math.IsNaN(c.Score) || c.Score < 0 || c.Score > c.MaxScore {
			return dataErrorf(r.ID, "component %q score %v outside [0, %v]", c.Name, c.Score, c.MaxScore)
		}
	}
	if math.Abs(r.TotalScore-r.Sum()) > totalTolerance {
		return dataErrorf(r.ID, "total_score %v does not match component sum %v", r.TotalScore, r.Sum())
	}
	return nil
}

// wireRecord mirrors ScoreRecord with pointers so missing fields can be told
// apart from zero values.
type wireRecord struct {
	ID            *string             `json:"id"`
	Course        string              `json:"course"`
	Components    []wireComponent     `json:"components"`
	TotalScore    *float64            `json:"total_score"`
	GradedAt      time.Time           `json:"graded_at"`
	Model         string              `json:"model"`
	Partial       bool                `json:"partial"`
	Normalization *NormalizationAudit `json:"normalization"`
}

type wireComponent struct {
	Name     string   `json:"name"`
	Score    *float64 `json:"score"`
	MaxScore *float64 `json:"max_score"`
	Comment  string   `json:"comment"`
}

// DecodeRecord parses and validates a stored record. fallbackID names the
// record in errors when the payload has no id of its own.
func DecodeRecord(data []byte, fallbackID string) (ScoreRecord, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return ScoreRecord{}, dataErrorf(fallbackID, "malformed json: %v", err)
	}
	if w.ID == nil {
		return ScoreRecord{}, dataErrorf(fallbackID, "missing id")
	}
	id := *w.ID
	if w.TotalScore == nil {
		return ScoreRecord{}, dataErrorf(id, "missing total_score")
	}
	rec := ScoreRecord{
		ID:            id,
		Course:        w.Course,
		TotalScore:    *w.TotalScore,
		GradedAt:      w.GradedAt,
		Model:         w.Model,
		Partial:       w.Partial,
		Normalization: w.Normalization,
		Components:    make([]ComponentScore, 0, len(w.Components)),
	}
	for i, c := range w.Components {
		if c.Score == nil {
			return ScoreRecord{}, dataErrorf(id, "component %d missing score", i)
		}
		if c.MaxScore == nil {
			return ScoreRecord{}, dataErrorf(id, "component %d missing max_score", i)
		}
		rec.Components = append(rec.Components, ComponentScore{
			Name:     c.Name,
			Score:    *c.Score,
			MaxScore: *c.MaxScore,
			Comment:  c.Comment,
		})
	}
	if err := rec.Validate(); err != nil {
		return ScoreRecord{}, err
	}
	return rec, nil
}

// EncodeRecord renders a record in the stored JSON layout.
func EncodeRecord(r ScoreRecord) ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode record %q: %w", r.ID, err)
	}
	return append(b, '\n'), nil
}
