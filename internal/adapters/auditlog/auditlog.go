// Package auditlog journals normalization audits to a SQL database.
package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite

	"github.com/okian/rubric/internal/domain/model"
	"github.com/okian/rubric/pkg/metrics"
)

// Driver selects the database backend.
type Driver string

// Supported drivers.
const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ErrUnsupportedDriver is returned for an unknown driver name.
var ErrUnsupportedDriver = errors.New("unsupported audit driver")

// Journal appends audits to the normalization_audits table.
type Journal struct {
	db     *sql.DB
	driver Driver
}

// Open opens the database and ensures the schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*Journal, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:rubric_audit.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/rubric?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("auditlog: ping: %w", err)
	}
	if driver == DriverSQLite {
		// one writer keeps sqlite from returning SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	if err := ensureSchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("auditlog: schema: %w", err)
	}
	return &Journal{db: db, driver: driver}, nil
}

// Close closes the database (safe to call on nil).
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append writes audits in a single transaction.
func (j *Journal) Append(ctx context.Context, audits []model.NormalizationAudit) (err error) {
	if len(audits) == 0 {
		return nil
	}
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.RecordStoreOperation("audit_append", result)
	}()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("auditlog: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, j.insertSQL())
	if err != nil {
		return fmt.Errorf("auditlog: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, a := range audits {
		clamped, err := json.Marshal(a.ClampedComponents)
		if err != nil {
			return fmt.Errorf("auditlog: encode clamped components: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			a.RunID, a.RecordID, a.NormalizedAt.UTC().UnixMilli(), a.Method,
			a.OriginalTotal, a.TargetTotal, a.AchievedTotal,
			a.Target.Mean, a.Target.Min, a.Target.Max,
			a.AdjustmentFactor, string(clamped), a.BackupLocation, a.BaselineLocation,
		); err != nil {
			return fmt.Errorf("auditlog: insert %q: %w", a.RecordID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("auditlog: commit: %w", err)
	}
	return nil
}

// History returns the audits of one record, oldest first.
func (j *Journal) History(ctx context.Context, recordID string) ([]model.NormalizationAudit, error) {
	q := `SELECT run_id, record_id, normalized_at, method, original_total, target_total,
achieved_total, target_mean, target_min, target_max, adjustment_factor, clamped_json,
backup_location, baseline_location
FROM normalization_audits WHERE record_id = ` + j.placeholder(1) + ` ORDER BY id`
	rows, err := j.db.QueryContext(ctx, q, recordID)
	if err != nil {
		return nil, fmt.Errorf("auditlog: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.NormalizationAudit
	for rows.Next() {
		var (
			a       model.NormalizationAudit
			at      int64
			clamped string
		)
		if err := rows.Scan(&a.RunID, &a.RecordID, &at, &a.Method, &a.OriginalTotal, &a.TargetTotal,
			&a.AchievedTotal, &a.Target.Mean, &a.Target.Min, &a.Target.Max, &a.AdjustmentFactor,
			&clamped, &a.BackupLocation, &a.BaselineLocation); err != nil {
			return nil, fmt.Errorf("auditlog: scan: %w", err)
		}
		a.NormalizedAt = time.UnixMilli(at).UTC()
		if err := json.Unmarshal([]byte(clamped), &a.ClampedComponents); err != nil {
			return nil, fmt.Errorf("auditlog: decode clamped components: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (j *Journal) insertSQL() string {
	cols := []string{
		"run_id", "record_id", "normalized_at", "method",
		"original_total", "target_total", "achieved_total",
		"target_mean", "target_min", "target_max",
		"adjustment_factor", "clamped_json", "backup_location", "baseline_location",
	}
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = j.placeholder(i + 1)
	}
	return "INSERT INTO normalization_audits (" + strings.Join(cols, ", ") +
		") VALUES (" + strings.Join(marks, ", ") + ")"
}

func (j *Journal) placeholder(n int) string {
	if j.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS normalization_audits (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL,
  record_id TEXT NOT NULL,
  normalized_at INTEGER NOT NULL,
  method TEXT NOT NULL,
  original_total REAL NOT NULL,
  target_total REAL NOT NULL,
  achieved_total REAL NOT NULL,
  target_mean REAL NOT NULL,
  target_min REAL NOT NULL,
  target_max REAL NOT NULL,
  adjustment_factor REAL NOT NULL,
  clamped_json TEXT NOT NULL DEFAULT 'null',
  backup_location TEXT NOT NULL,
  baseline_location TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS normalization_audits_record ON normalization_audits(record_id);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS normalization_audits (
  id BIGSERIAL PRIMARY KEY,
  run_id TEXT NOT NULL,
  record_id TEXT NOT NULL,
  normalized_at BIGINT NOT NULL,
  method TEXT NOT NULL,
  original_total DOUBLE PRECISION NOT NULL,
  target_total DOUBLE PRECISION NOT NULL,
  achieved_total DOUBLE PRECISION NOT NULL,
  target_mean DOUBLE PRECISION NOT NULL,
  target_min DOUBLE PRECISION NOT NULL,
  target_max DOUBLE PRECISION NOT NULL,
  adjustment_factor DOUBLE PRECISION NOT NULL,
  clamped_json TEXT NOT NULL DEFAULT 'null',
  backup_location TEXT NOT NULL,
  baseline_location TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS normalization_audits_record ON normalization_audits(record_id);
`
