package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/rubric/internal/domain/scoring"
)

// Criterion names of the default rubric.
const (
	CriterionVideo        = "Video Presentation"
	CriterionCoding       = "Coding Quality"
	CriterionProject      = "Project Description, Design & Development Process"
	CriterionContribution = "Individual Contribution"
	CriterionTesting      = "Testing & Validation"
	CriterionAssets       = "Supporting Asset Management"
)

// DefaultRubric returns the rubric shared by the default courses.
func DefaultRubric() []scoring.Criterion {
	return []scoring.Criterion{
		{
			Name:     CriterionVideo,
			MaxScore: 35,
			Evidence: []scoring.EvidenceKind{scoring.EvidenceVideo},
			Guidance: `- Excellent (27.1 to 35 pts): Video is clear, engaging and within 3 minutes. It showcases the prototype's key features with smooth execution and high production quality.
- Good (20.1 to 27 pts): Video is clear and within time. Shows most key features but may lack polish.
- Satisfactory (13.1 to 20 pts): Video is somewhat clear but exceeds the time limit or misses features. Functionality is partially demonstrated.
- Needs Improvement (0.1 to 13 pts): Video is unclear, far off time, or fails to demonstrate the prototype.`,
		},
		{
			Name:     CriterionCoding,
			MaxScore: 20,
			Evidence: []scoring.EvidenceKind{scoring.EvidenceCode, scoring.EvidenceArchive},
			Guidance: `- Excellent (15.1 to 20 pts): Code is well structured, readable and modular with useful comments. The archive is organised and functional. No major bugs.
- Good (11.1 to 15 pts): Code is functional and mostly readable with minor issues. The archive is organised.
- Satisfactory (7.1 to 11 pts): Code works but lacks structure or readability. The archive is somewhat disorganised.
- Needs Improvement (0.1 to 7 pts): Code is poorly written, unreadable or non-functional. The archive is missing or unusable.`,
		},
		{
			Name:     CriterionProject,
			MaxScore: 20,
			Evidence: []scoring.EvidenceKind{scoring.EvidenceDocument, scoring.EvidenceImage},
			Guidance: `- Excellent (15.1 to 20 pts): Purpose, design rationale and development process are articulated with strong technical detail. Visual aids are effective.
- Good (11.1 to 15 pts): Purpose, design and process are covered but lack some depth or clarity.
- Satisfactory (7.1 to 11 pts): Purpose, design and process are addressed minimally with limited detail.
- Needs Improvement (0.1 to 7 pts): Vague, lacks technical detail, or fails to explain design and development.`,
		},
		{
			Name:     CriterionContribution,
			MaxScore: 10,
			Evidence: []scoring.EvidenceKind{scoring.EvidenceDocument},
			Guidance: `- Excellent (7.1 to 10 pts): Each member's role and contribution is clearly defined and significant, with a balanced workload.
- Good (5.1 to 7 pts): Contributions are defined but uneven or lack detail.
- Satisfactory (3.1 to 5 pts): Contributions are vaguely described with unclear roles.
- Needs Improvement (0.1 to 3 pts): Contributions are not described or significantly unbalanced.`,
		},
		{
			Name:     CriterionTesting,
			MaxScore: 10,
			Evidence: []scoring.EvidenceKind{scoring.EvidenceDocument, scoring.EvidenceCode, scoring.EvidenceImage},
			Guidance: `- Excellent (7.1 to 10 pts): Testing methodology is thorough, documented and clearly presented. Validation is backed by evidence such as test results.
- Good (5.1 to 7 pts): Testing is adequate with some documentation.
- Satisfactory (1.1 to 5 pts): Testing is minimal or poorly documented.
- Needs Improvement (0.1 to 1 pts): Testing and validation are absent or insufficient.`,
		},
		{
			Name:     CriterionAssets,
			MaxScore: 5,
			Evidence: []scoring.EvidenceKind{scoring.EvidenceDocument, scoring.EvidenceArchive},
			Guidance: `- Excellent (3.1 to 5 pts): The asset register is complete, organised and documents every asset used.
- Good (2.1 to 3 pts): The asset register is mostly complete with minor gaps.
- Satisfactory (1.1 to 2 pts): The asset register is incomplete or poorly organised.
- Needs Improvement (0.1 to 1 pts): The asset register is missing or severely lacking.`,
		},
	}
}

type rubricFile struct {
	Criteria []scoring.Criterion `yaml:"criteria"`
}

// LoadRubric reads a YAML rubric override:
//
//	criteria:
//	  - name: Coding Quality
//	    max_score: 20
//	    evidence: [code, archive]
//	    guidance: |
//	      - Excellent (15.1 to 20 pts): ...
func LoadRubric(path string) ([]scoring.Criterion, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var rf rubricFile
	if err := dec.Decode(&rf); err != nil {
		return nil, fmt.Errorf("%w: rubric %s: %w", ErrLoadConfig, path, err)
	}
	if err := ValidateRubric(rf.Criteria); err != nil {
		return nil, err
	}
	return rf.Criteria, nil
}

// ValidateRubric rejects empty rubrics, unnamed or duplicate criteria, and
// non-positive maxima.
func ValidateRubric(criteria []scoring.Criterion) error {
	if len(criteria) == 0 {
		return fmt.Errorf("%w: no criteria", ErrInvalidRubric)
	}
	seen := make(map[string]bool, len(criteria))
	var errs []error
	for i, c := range criteria {
		name := strings.TrimSpace(c.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("criterion %d has no name", i))
		case seen[name]:
			errs = append(errs, fmt.Errorf("criterion %q is listed twice", name))
		case c.MaxScore <= 0:
			errs = append(errs, fmt.Errorf("criterion %q has max_score %v", name, c.MaxScore))
		}
		seen[name] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRubric, errors.Join(errs...))
	}
	return nil
}
