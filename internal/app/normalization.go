package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rubric/internal/adapters/repository"
	"github.com/okian/rubric/internal/domain/model"
	"github.com/okian/rubric/internal/domain/normalize"
	"github.com/okian/rubric/pkg/logger"
	"github.com/okian/rubric/pkg/metrics"
)

// Record outcomes of a normalization run.
const (
	StatusNormalized = "normalized"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
	StatusUnchanged  = "unchanged"
)

// Run outcomes recorded in metrics.
const (
	runCompleted   = "completed"
	runPartial     = "partial"
	runSkipped     = "skipped"
	runConfigError = "config_error"
	runError       = "error"
)

// ErrNoRecords is returned when neither the baseline nor the live store
// holds a usable record.
var ErrNoRecords = errors.New("no records to normalize")

// Stores gives the orchestrator the live store and its backup locations.
type Stores interface {
	Live() repository.Store
	Baseline() repository.Store
	Snapshot(at time.Time, runID string) repository.Store
}

// Journal keeps normalization audits outside the records.
type Journal interface {
	Append(ctx context.Context, audits []model.NormalizationAudit) error
}

// VaultStores exposes a repository.Vault as Stores.
func VaultStores(v *repository.Vault) Stores { return vaultStores{v} }

type vaultStores struct{ v *repository.Vault }

func (s vaultStores) Live() repository.Store     { return s.v.Live() }
func (s vaultStores) Baseline() repository.Store { return s.v.Baseline() }
func (s vaultStores) Snapshot(at time.Time, runID string) repository.Store {
	return s.v.Snapshot(at, runID)
}

// Outcome is what happened to one record in a run.
type Outcome struct {
	RecordID      string   `json:"record_id"`
	Status        string   `json:"status"`
	OriginalTotal float64  `json:"original_total"`
	TargetTotal   float64  `json:"target_total,omitempty"`
	AchievedTotal float64  `json:"achieved_total,omitempty"`
	Factor        float64  `json:"adjustment_factor,omitempty"`
	Clamped       []string `json:"clamped_components,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Shortfall is target minus achieved total for a normalized record.
func (o Outcome) Shortfall() float64 { return o.TargetTotal - o.AchievedTotal }

// Report summarizes one normalization run.
type Report struct {
	RunID  string                   `json:"run_id"`
	Target model.TargetDistribution `json:"target"`
	Source string                   `json:"source"`
	// FromBaseline is set when records were read from the baseline backup
	// rather than the live store.
	FromBaseline bool `json:"from_baseline"`
	// NoOp is set when the cohort already satisfied the target and nothing
	// was written.
	NoOp       bool                   `json:"no_op"`
	Before     normalize.Distribution `json:"before"`
	After      normalize.Distribution `json:"after"`
	Thresholds normalize.Thresholds   `json:"thresholds"`
	Degenerate bool                   `json:"degenerate"`
	Repaired   int                    `json:"rank_repaired"`
	Backup     string                 `json:"backup_location,omitempty"`
	Baseline   string                 `json:"baseline_location,omitempty"`
	Succeeded  int                    `json:"succeeded"`
	Skipped    int                    `json:"skipped"`
	Failed     int                    `json:"failed"`
	Outcomes   []Outcome              `json:"outcomes"`
	StartedAt  time.Time              `json:"started_at"`
	Duration   time.Duration          `json:"duration_ns"`
}

// Partial reports whether any record was left unchanged by a run that
// proceeded.
func (r Report) Partial() bool { return !r.NoOp && (r.Skipped > 0 || r.Failed > 0) }

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithSkipTolerance sets how far the cohort mean may sit from the target
// before a run proceeds.
func WithSkipTolerance(tol float64) NormalizerOption {
	return func(n *Normalizer) {
		if tol >= 0 {
			n.tolerance = tol
		}
	}
}

// WithJournal appends every run's audits to j.
func WithJournal(j Journal) NormalizerOption {
	return func(n *Normalizer) { n.journal = j }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// WithTiered replaces the cohort normalizer.
func WithTiered(t *normalize.Tiered) NormalizerOption {
	return func(n *Normalizer) {
		if t != nil {
			n.tiered = t
		}
	}
}

// WithNormalizerLogger sets the logger.
func WithNormalizerLogger(l logger.Logger) NormalizerOption {
	return func(n *Normalizer) {
		if l != nil {
			n.logger = l
		}
	}
}

// Normalizer drives normalization runs over a record store. Runs are
// serialized: backup, normalize and persist happen as one unit.
type Normalizer struct {
	mu        sync.Mutex
	stores    Stores
	tiered    *normalize.Tiered
	journal   Journal
	tolerance float64
	now       func() time.Time
	logger    logger.Logger
}

// NewNormalizer creates an orchestrator over stores.
func NewNormalizer(stores Stores, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		stores:    stores,
		tiered:    normalize.NewTiered(),
		tolerance: normalize.DefaultSkipTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = logger.Named("normalizer")
	}
	return n
}

// source is one record read for a run, in load order.
type source struct {
	rec    model.ScoreRecord
	idx    int
	backed bool
	out    *Outcome
}

// Run normalizes the cohort toward target. An invalid target is returned
// before any store is touched. Per-record data and persistence failures are
// counted in the report and leave that record unchanged.
func (n *Normalizer) Run(ctx context.Context, target model.TargetDistribution) (rep Report, err error) {
	if err = target.Validate(); err != nil {
		metrics.RecordNormalizationRun(runConfigError)
		return Report{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	start := n.now()
	rep = Report{RunID: uuid.NewString(), Target: target, StartedAt: start.UTC()}
	ctx = logger.WithFields(ctx, logger.String("run", rep.RunID))
	defer func() {
		rep.Duration = time.Since(start)
		metrics.RecordNormalizationDuration(float64(rep.Duration.Milliseconds()))
	}()

	live, baseline := n.stores.Live(), n.stores.Baseline()
	entries, from, err := n.loadSource(ctx, live, baseline)
	if err != nil {
		metrics.RecordNormalizationRun(runError)
		return rep, err
	}
	rep.Source = from.Location()
	rep.FromBaseline = from == baseline

	var cohort []*source
	for _, e := range entries {
		out := Outcome{RecordID: e.ID}
		if e.Err != nil {
			out.Status = StatusSkipped
			if errors.Is(e.Err, repository.ErrPersistence) {
				out.Status = StatusFailed
			}
			out.Error = e.Err.Error()
			n.logger.Warn(ctx, "record not loaded", logger.String("record", e.ID), logger.Error(e.Err))
			rep.Outcomes = append(rep.Outcomes, out)
			continue
		}
		out.OriginalTotal = e.Record.TotalScore
		rep.Outcomes = append(rep.Outcomes, out)
		cohort = append(cohort, &source{rec: e.Record, idx: len(rep.Outcomes) - 1})
	}
	for _, s := range cohort {
		s.out = &rep.Outcomes[s.idx]
	}
	if len(cohort) == 0 {
		n.tally(&rep)
		metrics.RecordNormalizationRun(runError)
		return rep, fmt.Errorf("%w in %s", ErrNoRecords, rep.Source)
	}

	totals := make([]float64, len(cohort))
	for i, s := range cohort {
		totals[i] = s.rec.TotalScore
	}
	rep.Before = normalize.Describe(totals)
	metrics.UpdateDistribution("before", rep.Before.Mean, rep.Before.Min, rep.Before.Max)

	if rep.Before.Satisfies(target, n.tolerance) {
		rep.NoOp = true
		rep.After = rep.Before
		for _, s := range cohort {
			s.out.Status = StatusUnchanged
			s.out.AchievedTotal = s.rec.TotalScore
		}
		n.tally(&rep)
		metrics.RecordNormalizationRun(runSkipped)
		n.logger.Info(ctx, "cohort already within target, nothing to do",
			logger.Float64("mean", rep.Before.Mean),
			logger.Float64("min", rep.Before.Min),
			logger.Float64("max", rep.Before.Max),
			logger.Float64("tolerance", n.tolerance),
		)
		return rep, nil
	}

	rep.Backup, rep.Baseline = n.backup(ctx, live, baseline, rep, entries, cohort)

	res, err := n.tiered.Normalize(totals, target)
	if err != nil {
		// target and totals were validated above
		metrics.RecordNormalizationRun(runError)
		return rep, err
	}
	rep.Thresholds, rep.Degenerate, rep.Repaired = res.Thresholds, res.Degenerate, res.Repaired
	if res.Degenerate {
		n.logger.Warn(ctx, "degenerate cohort, every record gets the target mean",
			logger.Int("records", len(cohort)), logger.Error(res.Err()))
	}

	at := n.now()
	var audits []model.NormalizationAudit
	var clamped int
	after := make([]float64, len(cohort))
	for i, s := range cohort {
		after[i] = s.rec.TotalScore
		if !s.backed {
			continue
		}
		red, err := normalize.Redistribute(s.rec, res.Scores[i])
		if err != nil {
			s.out.Status, s.out.Error = StatusSkipped, err.Error()
			n.logger.Warn(ctx, "record not normalized", logger.String("record", s.rec.ID), logger.Error(err))
			continue
		}
		audit := red.Audit(rep.RunID, at, target, rep.Backup, rep.Baseline)
		red.Record.Normalization = &audit
		if err := live.Save(ctx, red.Record); err != nil {
			s.out.Status, s.out.Error = StatusFailed, err.Error()
			n.logger.Error(ctx, "normalized record not saved", logger.String("record", s.rec.ID), logger.Error(err))
			continue
		}

		s.out.Status = StatusNormalized
		s.out.TargetTotal = red.TargetTotal
		s.out.AchievedTotal = red.AchievedTotal
		s.out.Factor = red.Factor
		s.out.Clamped = red.Clamped
		after[i] = red.AchievedTotal
		clamped += len(red.Clamped)
		audits = append(audits, audit)
		n.logger.Debug(ctx, "record normalized",
			logger.String("record", s.rec.ID),
			logger.Float64("original", red.OriginalTotal),
			logger.Float64("target", red.TargetTotal),
			logger.Float64("achieved", red.AchievedTotal),
			logger.Float64("factor", red.Factor),
			logger.Int("clamped", len(red.Clamped)),
		)
	}

	rep.After = normalize.Describe(after)
	n.tally(&rep)
	n.appendJournal(ctx, audits)

	metrics.UpdateDistribution("after", rep.After.Mean, rep.After.Min, rep.After.Max)
	metrics.UpdateMeanDeviation(rep.After.Mean - target.Mean)
	metrics.RecordClampedComponents(clamped)
	outcome := runCompleted
	if rep.Partial() {
		outcome = runPartial
	}
	metrics.RecordNormalizationRun(outcome)

	n.logger.Info(ctx, "normalization finished",
		logger.String("source", rep.Source),
		logger.Float64("mean_before", rep.Before.Mean),
		logger.Float64("mean_after", rep.After.Mean),
		logger.Float64("min_after", rep.After.Min),
		logger.Float64("max_after", rep.After.Max),
		logger.Int("succeeded", rep.Succeeded),
		logger.Int("skipped", rep.Skipped),
		logger.Int("failed", rep.Failed),
		logger.Int("rank_repaired", rep.Repaired),
	)
	return rep, nil
}

// loadSource prefers a non-empty baseline over the live store so every run
// starts from the same original records. Live records the baseline lacks are
// added to it first.
func (n *Normalizer) loadSource(ctx context.Context, live, baseline repository.Store) ([]repository.Entry, repository.Store, error) {
	entries, err := baseline.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load baseline: %w", err)
	}
	if len(entries) == 0 {
		entries, err = live.Load(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load records: %w", err)
		}
		return entries, live, nil
	}
	missing, err := n.adopt(ctx, live, baseline, entries)
	if err != nil {
		return nil, nil, err
	}
	if missing.added > 0 {
		if entries, err = baseline.Load(ctx); err != nil {
			return nil, nil, fmt.Errorf("load baseline: %w", err)
		}
	}
	return append(entries, missing.failed...), baseline, nil
}

// adoption is the result of copying live records the baseline lacks.
type adoption struct {
	added  int
	failed []repository.Entry
}

// adopt copies into the baseline every live record it does not hold yet:
// records graded after the first run, or ones whose first backup failed.
// Such records have never been normalized, so the live copy is their
// original. A record that cannot be copied comes back as a failed entry.
func (n *Normalizer) adopt(ctx context.Context, live, baseline repository.Store, entries []repository.Entry) (adoption, error) {
	var res adoption
	current, err := live.Load(ctx)
	if err != nil {
		return res, fmt.Errorf("load records: %w", err)
	}
	held := make(map[string]bool, len(entries))
	for _, e := range entries {
		held[e.ID] = true
	}
	for _, e := range current {
		if held[e.ID] {
			continue
		}
		if err := repository.Copy(ctx, live, baseline, e.ID); err != nil {
			n.logger.Error(ctx, "record missing from baseline and not added",
				logger.String("record", e.ID), logger.Error(err))
			res.failed = append(res.failed, repository.Entry{
				ID:  e.ID,
				Err: fmt.Errorf("not in baseline: %w", err),
			})
			continue
		}
		n.logger.Info(ctx, "record added to baseline", logger.String("record", e.ID))
		res.added++
	}
	return res, nil
}

// backup copies the live documents of the cohort before anything is
// written. The first run fills the baseline with every loaded document;
// later runs snapshot the live store. A record whose copy fails is marked
// failed and left alone.
func (n *Normalizer) backup(ctx context.Context, live, baseline repository.Store, rep Report,
	entries []repository.Entry, cohort []*source,
) (backupLoc, baselineLoc string) {
	dst := baseline
	if rep.FromBaseline {
		dst = n.stores.Snapshot(rep.StartedAt, rep.RunID)
	} else {
		for _, e := range entries {
			if e.Err == nil {
				continue
			}
			if err := repository.Copy(ctx, live, dst, e.ID); err != nil {
				n.logger.Warn(ctx, "unreadable record not backed up", logger.String("record", e.ID), logger.Error(err))
			}
		}
	}
	for _, s := range cohort {
		err := repository.Copy(ctx, live, dst, s.rec.ID)
		switch {
		case err == nil:
			s.backed = true
		case rep.FromBaseline && errors.Is(err, repository.ErrNotFound):
			// not in the live store; the baseline already holds it
			s.backed = true
		default:
			s.out.Status, s.out.Error = StatusFailed, fmt.Sprintf("backup: %v", err)
			n.logger.Error(ctx, "backup failed, record left unchanged",
				logger.String("record", s.rec.ID), logger.String("backup", dst.Location()), logger.Error(err))
		}
	}
	n.logger.Info(ctx, "backup written",
		logger.String("backup", dst.Location()), logger.Int("records", len(cohort)))
	return dst.Location(), baseline.Location()
}

func (n *Normalizer) appendJournal(ctx context.Context, audits []model.NormalizationAudit) {
	if n.journal == nil || len(audits) == 0 {
		return
	}
	if err := n.journal.Append(ctx, audits); err != nil {
		n.logger.Error(ctx, "audit journal append failed", logger.Int("audits", len(audits)), logger.Error(err))
	}
}

func (n *Normalizer) tally(rep *Report) {
	rep.Succeeded, rep.Skipped, rep.Failed = 0, 0, 0
	for _, o := range rep.Outcomes {
		switch o.Status {
		case StatusNormalized:
			rep.Succeeded++
		case StatusSkipped:
			rep.Skipped++
		case StatusFailed:
			rep.Failed++
		}
	}
	metrics.RecordNormalizedRecords(StatusNormalized, rep.Succeeded)
	metrics.RecordNormalizedRecords(StatusSkipped, rep.Skipped)
	metrics.RecordNormalizedRecords(StatusFailed, rep.Failed)
}
