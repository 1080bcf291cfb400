package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/okian/rubric/internal/adapters/auditlog"
	"github.com/okian/rubric/internal/adapters/llm/gemini"
	"github.com/okian/rubric/internal/adapters/repository"
	"github.com/okian/rubric/internal/config"
	"github.com/okian/rubric/pkg/logger"
)

var version = "dev"

// auditFile is the sqlite journal created under the results directory when
// no DSN is configured.
const auditFile = "normalization_audit.db"

// cli holds the persistent flags and what they resolve to.
type cli struct {
	configPath string
	course     string
	results    string
	logLevel   string

	cfg *config.Config
	log logger.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:   "rubric",
		Short: "Grade group submissions against a rubric and normalize the cohort",
		Long: `Rubric grades group submissions criterion by criterion, normalizes the
cohort toward a course's target distribution, refines feedback tone, and
exports CSV reports.

Configuration is layered: built-in defaults, a YAML file (--config or
RUBRIC_CONFIG), a .env file, then RUBRIC_* environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "YAML config file (default: $RUBRIC_CONFIG)")
	flags.StringVar(&c.course, "course", "", "Active course, e.g. 7009ICT or 3702ICT")
	flags.StringVar(&c.results, "results", "", "Results directory holding one JSON record per group")
	flags.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newGradeCommand(c))
	cmd.AddCommand(newNormalizeCommand(c))
	cmd.AddCommand(newRefineCommand(c))
	cmd.AddCommand(newExportCommand(c))
	cmd.AddCommand(newServeCommand(c))
	return cmd
}

// load initializes logging and resolves configuration with flag overrides.
func (c *cli) load(cmd *cobra.Command) error {
	if err := logger.InitWithWriter(cmd.ErrOrStderr()); err != nil {
		return err
	}
	cfg, err := config.Load(cmd.Context(), c.configPath)
	if err != nil {
		return err
	}
	if c.course != "" {
		cfg.Course = c.course
	}
	if c.results != "" {
		cfg.ResultsDir = c.results
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.log = logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.log.Warn(cmd.Context(), "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	return nil
}

func (c *cli) active() config.Course {
	// Validate already rejected unknown courses
	course, _ := c.cfg.Active()
	return course
}

func (c *cli) vault() *repository.Vault {
	return repository.NewVault(c.cfg.ResultsDir)
}

// journal opens the audit journal when one is configured. A journal that
// cannot be opened is logged and left out; it never blocks a run.
func (c *cli) journal(ctx context.Context) *auditlog.Journal {
	if c.cfg.AuditDriver == "" {
		return nil
	}
	driver := auditlog.Driver(c.cfg.AuditDriver)
	dsn := c.cfg.AuditDSN
	if dsn == "" && driver == auditlog.DriverSQLite {
		if err := os.MkdirAll(c.cfg.ResultsDir, 0o755); err != nil {
			c.log.Warn(ctx, "audit journal disabled", logger.Error(err))
			return nil
		}
		dsn = "file:" + filepath.Join(c.cfg.ResultsDir, auditFile) + "?_pragma=busy_timeout(5000)"
	}
	j, err := auditlog.Open(ctx, driver, dsn)
	if err != nil {
		c.log.Warn(ctx, "audit journal disabled", logger.String("driver", c.cfg.AuditDriver), logger.Error(err))
		return nil
	}
	return j
}

// engine connects to Gemini with the configured pacing.
func (c *cli) engine(ctx context.Context) (*gemini.Engine, error) {
	e, err := gemini.New(ctx, c.cfg.GeminiAPIKey, c.cfg.Model,
		gemini.WithTimeout(c.cfg.RequestTimeout()),
		gemini.WithMinInterval(c.cfg.RequestInterval()),
		gemini.WithLogger(c.log.Named("gemini")),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return e, nil
}
