// Package config defines process configuration and its loading.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Config is passed explicitly to the components that need it.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/okian/rubric/internal/domain/model"
	"github.com/okian/rubric/internal/domain/normalize"
	"github.com/okian/rubric/internal/domain/scoring"
)

// Course names shipped by default.
const (
	Course7009ICT = "7009ICT"
	Course3702ICT = "3702ICT"
)

// Course holds one course variant's grading and normalization policy.
type Course struct {
	// Level selects the prompt persona: graduate or undergraduate.
	Level string `koanf:"level" yaml:"level"`

	// TargetMean, TargetMin and TargetMax shape normalization.
	TargetMean float64 `koanf:"target_mean" yaml:"target_mean"`
	TargetMin  float64 `koanf:"target_min" yaml:"target_min"`
	TargetMax  float64 `koanf:"target_max" yaml:"target_max"`

	// Criteria is the rubric. Empty means the default rubric.
	Criteria []scoring.Criterion `koanf:"criteria" yaml:"criteria"`
}

// Target returns the course's target distribution.
func (c Course) Target() model.TargetDistribution {
	return model.TargetDistribution{Mean: c.TargetMean, Min: c.TargetMin, Max: c.TargetMax}
}

// Rubric returns the course criteria, or the default rubric.
func (c Course) Rubric() []scoring.Criterion {
	if len(c.Criteria) == 0 {
		return DefaultRubric()
	}
	return c.Criteria
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" yaml:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" yaml:"addr"`

	// ResultsDir holds one JSON document per graded submission.
	ResultsDir string `koanf:"results_dir" yaml:"results_dir"`

	// SubmissionsDir holds one directory per group.
	SubmissionsDir string `koanf:"submissions_dir" yaml:"submissions_dir"`

	// Course selects the active entry of Courses.
	Course  string            `koanf:"course" yaml:"course"`
	Courses map[string]Course `koanf:"courses" yaml:"courses"`

	// SkipTolerance is how far the cohort mean may sit from the target
	// before normalization proceeds.
	SkipTolerance float64 `koanf:"skip_tolerance" yaml:"skip_tolerance"`

	// GeminiAPIKey enables the Gemini grader. GEMINI_API_KEY is used when
	// unset.
	GeminiAPIKey string `koanf:"gemini_api_key" yaml:"gemini_api_key"`
	Model        string `koanf:"model" yaml:"model"`

	// MaxAttempts and RetryBaseDelayMS drive retries of failed assessments.
	MaxAttempts      int `koanf:"max_attempts" yaml:"max_attempts"`
	RetryBaseDelayMS int `koanf:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`

	// RequestTimeoutS bounds one API call; RequestIntervalMS spaces calls.
	RequestTimeoutS   int `koanf:"request_timeout_s" yaml:"request_timeout_s"`
	RequestIntervalMS int `koanf:"request_interval_ms" yaml:"request_interval_ms"`

	// WorkerCount sets how many groups are graded at once.
	WorkerCount int `koanf:"worker_count" yaml:"worker_count"`

	// AuditDriver selects the audit journal: sqlite or postgres. Empty
	// disables it; an empty AuditDSN uses the driver's default.
	AuditDriver string `koanf:"audit_driver" yaml:"audit_driver"`
	AuditDSN    string `koanf:"audit_dsn" yaml:"audit_dsn"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		Addr:           ":9080",
		ResultsDir:     "grading_results",
		SubmissionsDir: "submissions",
		Course:         Course7009ICT,
		Courses: map[string]Course{
			Course7009ICT: {
				Level:      scoring.LevelGraduate,
				TargetMean: 70,
				TargetMin:  55,
				TargetMax:  85,
				Criteria:   DefaultRubric(),
			},
			Course3702ICT: {
				Level:      scoring.LevelUndergraduate,
				TargetMean: 65,
				TargetMin:  55,
				TargetMax:  90,
				Criteria:   DefaultRubric(),
			},
		},
		SkipTolerance:     normalize.DefaultSkipTolerance,
		Model:             "gemini-2.5-flash",
		MaxAttempts:       scoring.DefaultMaxAttempts,
		RetryBaseDelayMS:  int(scoring.DefaultBaseDelay / time.Millisecond),
		RequestTimeoutS:   120,
		RequestIntervalMS: 1000,
		WorkerCount:       2,
	}
}

// Active returns the selected course. Lookup ignores case.
func (c *Config) Active() (Course, error) {
	if course, ok := c.Courses[c.Course]; ok {
		return course, nil
	}
	for name, course := range c.Courses {
		if strings.EqualFold(name, c.Course) {
			return course, nil
		}
	}
	return Course{}, fmt.Errorf("%w %q (have %s)", ErrUnknownCourse, c.Course, strings.Join(c.CourseNames(), ", "))
}

// CourseNames lists configured courses in order.
func (c *Config) CourseNames() []string {
	names := make([]string, 0, len(c.Courses))
	for name := range c.Courses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RetryPolicy returns the assessment retry policy.
func (c *Config) RetryPolicy() scoring.Policy {
	p := scoring.DefaultPolicy()
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}
	if c.RetryBaseDelayMS > 0 {
		p.BaseDelay = time.Duration(c.RetryBaseDelayMS) * time.Millisecond
	}
	return p
}

// RequestTimeout bounds one API call.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutS) * time.Second
}

// RequestInterval spaces consecutive API calls.
func (c *Config) RequestInterval() time.Duration {
	return time.Duration(c.RequestIntervalMS) * time.Millisecond
}

// Validate checks the configuration. Every failure wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ResultsDir) == "" {
		return fmt.Errorf("%w: results_dir must not be empty", ErrInvalidConfig)
	}
	if c.SkipTolerance < 0 {
		return fmt.Errorf("%w: skip_tolerance must not be negative", ErrInvalidConfig)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("%w: worker_count must be at least 1", ErrInvalidConfig)
	}
	course, err := c.Active()
	if err != nil {
		return err
	}
	if err := course.Target().Validate(); err != nil {
		return fmt.Errorf("%w: course %s: %w", ErrInvalidConfig, c.Course, err)
	}
	if err := ValidateRubric(course.Rubric()); err != nil {
		return fmt.Errorf("course %s: %w", c.Course, err)
	}
	switch c.AuditDriver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unsupported audit_driver %q", ErrInvalidConfig, c.AuditDriver)
	}
	return nil
}
