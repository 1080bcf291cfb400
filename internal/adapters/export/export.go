// Package export writes score records as CSV reports.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/okian/rubric/internal/domain/model"
)

// Report kinds, used in generated file names.
const (
	KindSummary  = "evaluation_report"
	KindDetailed = "detailed_report"
)

const noComment = "No comment available"

// ErrNoRecords is returned when there is nothing to export.
var ErrNoRecords = errors.New("no records to export")

// Option configures an Exporter.
type Option func(*Exporter)

// WithRefined supplies records whose comments replace the live ones,
// matched by record id and component name.
func WithRefined(records []model.ScoreRecord) Option {
	return func(e *Exporter) {
		for _, r := range records {
			e.refined[r.ID] = r
		}
	}
}

// WithCriteria fixes the column order of the detailed report. Criteria not
// listed are appended in order of first appearance.
func WithCriteria(names ...string) Option {
	return func(e *Exporter) {
		e.criteria = append([]string(nil), names...)
	}
}

// Exporter renders records into CSV.
type Exporter struct {
	refined  map[string]model.ScoreRecord
	criteria []string
}

// New creates an exporter.
func New(opts ...Option) *Exporter {
	e := &Exporter{refined: make(map[string]model.ScoreRecord)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Refined reports whether any refined comments were supplied.
func (e *Exporter) Refined() bool { return len(e.refined) > 0 }

// Summary writes one row per criterion and a total row per record, with a
// blank row between records.
func (e *Exporter) Summary(w io.Writer, records []model.ScoreRecord) error {
	if len(records) == 0 {
		return ErrNoRecords
	}
	cw := csv.NewWriter(w)
	rows := [][]string{{"Group Name", "Scoring Criteria", "Achieved Score", "Max Score", "Comments/Feedback"}}
	for i, r := range records {
		if i > 0 {
			rows = append(rows, []string{"", "", "", "", ""})
		}
		for _, c := range r.Components {
			rows = append(rows, []string{r.ID, c.Name, formatScore(c.Score), formatScore(c.MaxScore), e.comment(r.ID, c)})
		}
		rows = append(rows, []string{
			r.ID, "TOTAL SCORE", formatScore(r.TotalScore), formatScore(r.MaxTotal()),
			fmt.Sprintf("Overall assessment total: %s points", formatScore(r.TotalScore)),
		})
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// Detailed writes one row per record with a score and comment column per
// criterion, the total, and normalization details when present.
func (e *Exporter) Detailed(w io.Writer, records []model.ScoreRecord) error {
	if len(records) == 0 {
		return ErrNoRecords
	}
	cols := e.columns(records)

	header := []string{"Group Name", "Graded At", "Model", "Partial"}
	for _, c := range cols {
		header = append(header, c+" Score", c+" Comment")
	}
	header = append(header, "Total Score", "Max Total", "Original Total", "Adjustment Factor", "Refinement Status")

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write detailed: %w", err)
	}
	for _, r := range records {
		row := []string{r.ID, formatTime(r.GradedAt), r.Model, strconv.FormatBool(r.Partial)}
		for _, name := range cols {
			c, ok := r.Component(name)
			if !ok {
				row = append(row, "", "")
				continue
			}
			row = append(row, formatScore(c.Score), e.comment(r.ID, c))
		}
		original, factor := "", ""
		if a := r.Normalization; a != nil {
			original = formatScore(a.OriginalTotal)
			factor = strconv.FormatFloat(a.AdjustmentFactor, 'f', 4, 64)
		}
		status := "Original"
		if _, ok := e.refined[r.ID]; ok {
			status = "Refined"
		}
		row = append(row, formatScore(r.TotalScore), formatScore(r.MaxTotal()), original, factor, status)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write detailed: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write detailed: %w", err)
	}
	return nil
}

// WriteFile renders a report into dir under a timestamped name and returns
// the path.
func (e *Exporter) WriteFile(dir, course, kind string, at time.Time, records []model.ScoreRecord) (string, error) {
	var render func(io.Writer, []model.ScoreRecord) error
	switch kind {
	case KindSummary:
		render = e.Summary
	case KindDetailed:
		render = e.Detailed
	default:
		return "", fmt.Errorf("unknown report kind %q", kind)
	}

	name := kind
	if e.Refined() {
		name = strings.Replace(kind, "report", "refined_report", 1)
	}
	if course != "" {
		name = course + "_" + name
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", name, at.Format("20060102_150405")))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := render(f, records); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func (e *Exporter) comment(id string, c model.ComponentScore) string {
	if r, ok := e.refined[id]; ok {
		if rc, ok := r.Component(c.Name); ok && strings.TrimSpace(rc.Comment) != "" {
			return CleanComment(rc.Comment)
		}
	}
	return CleanComment(c.Comment)
}

func (e *Exporter) columns(records []model.ScoreRecord) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, name := range e.criteria {
		if !seen[name] {
			seen[name] = true
			cols = append(cols, name)
		}
	}
	for _, r := range records {
		for _, c := range r.Components {
			if !seen[c.Name] {
				seen[c.Name] = true
				cols = append(cols, c.Name)
			}
		}
	}
	return cols
}

// CleanComment collapses line breaks and runs of whitespace. An empty
// comment becomes a placeholder.
func CleanComment(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return noComment
	}
	return s
}

func formatScore(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
