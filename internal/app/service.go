// Package service provides the orchestrators behind the CLI and the HTTP API.
package service

import (
	"context"
	"fmt"

	"github.com/okian/rubric/internal/adapters/repository"
	"github.com/okian/rubric/internal/domain/model"
	"github.com/okian/rubric/internal/domain/normalize"
	"github.com/okian/rubric/internal/domain/types"
	"github.com/okian/rubric/pkg/logger"
)

// ErrNotFound is returned when a record id is unknown.
var ErrNotFound = repository.ErrNotFound

// HistoryReader lists the audits recorded for one record.
type HistoryReader interface {
	History(ctx context.Context, recordID string) ([]model.NormalizationAudit, error)
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHistory sets the journal that answers audit history queries.
func WithHistory(h HistoryReader) Option {
	return func(s *Service) { s.history = h }
}

// WithTolerance sets how far the mean may sit from the target while the
// cohort is still reported as within target.
func WithTolerance(tol float64) Option {
	return func(s *Service) {
		if tol >= 0 {
			s.tolerance = tol
		}
	}
}

// Service exposes the records of one course and normalizes them on demand.
type Service struct {
	vault      *repository.Vault
	normalizer *Normalizer
	course     string
	target     model.TargetDistribution
	tolerance  float64
	history    HistoryReader
	logger     logger.Logger
}

// New constructs a Service over vault for course with its default target.
func New(vault *repository.Vault, normalizer *Normalizer, course string, target model.TargetDistribution, opts ...Option) *Service {
	s := &Service{
		vault:      vault,
		normalizer: normalizer,
		course:     course,
		target:     target,
		tolerance:  normalize.DefaultSkipTolerance,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	return s
}

// Records returns every valid live record, ranked by total.
func (s *Service) Records(ctx context.Context) ([]types.Entry, error) {
	records, _, err := s.valid(ctx)
	if err != nil {
		return nil, err
	}
	return types.Rank(records), nil
}

// Record returns one live record.
func (s *Service) Record(ctx context.Context, id string) (model.ScoreRecord, error) {
	return s.vault.Live().Get(ctx, id)
}

// History returns the normalization audits of a record, oldest first. Without
// a journal only the audit attached to the record is known.
func (s *Service) History(ctx context.Context, id string) ([]model.NormalizationAudit, error) {
	rec, err := s.vault.Live().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.history != nil {
		audits, err := s.history.History(ctx, id)
		if err == nil {
			return audits, nil
		}
		s.logger.Warn(ctx, "audit journal unavailable", logger.String("record", id), logger.Error(err))
	}
	if rec.Normalization == nil {
		return []model.NormalizationAudit{}, nil
	}
	return []model.NormalizationAudit{*rec.Normalization}, nil
}

// Stats describes the live cohort against the course target.
func (s *Service) Stats(ctx context.Context) (types.Stats, error) {
	records, invalid, err := s.valid(ctx)
	if err != nil {
		return types.Stats{}, err
	}
	st := types.Stats{
		Course:  s.course,
		Count:   len(records),
		Invalid: invalid,
		Target:  s.target,
	}
	if len(records) > 0 {
		totals := make([]float64, len(records))
		for i, r := range records {
			totals[i] = r.TotalScore
			if r.Normalization != nil {
				st.Normalized++
			}
		}
		d := normalize.Describe(totals)
		st.Mean, st.Min, st.Max = d.Mean, d.Min, d.Max
		st.WithinTarget = d.Satisfies(s.target, s.tolerance)
	}
	st.HasBaseline = s.vault.Baseline().Count(ctx) > 0
	return st, nil
}

// Normalize runs the normalizer against target, or the course target when
// target is nil.
func (s *Service) Normalize(ctx context.Context, target *model.TargetDistribution) (Report, error) {
	t := s.target
	if target != nil {
		t = *target
	}
	return s.normalizer.Run(ctx, t)
}

func (s *Service) valid(ctx context.Context) ([]model.ScoreRecord, int, error) {
	entries, err := s.vault.Live().Load(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load records: %w", err)
	}
	records := make([]model.ScoreRecord, 0, len(entries))
	invalid := 0
	for _, e := range entries {
		if e.Err != nil {
			invalid++
			continue
		}
		records = append(records, e.Record)
	}
	return records, invalid, nil
}
