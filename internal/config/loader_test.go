package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/rubric/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// clearEnv unsets every variable the loader reads. Convey re-runs the root
// scope for each leaf, so values set by one branch would otherwise reach the
// next; t.Setenv still restores the originals when the test ends.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, config.EnvPrefix) || key == config.EnvGeminiKey {
			t.Setenv(key, "")
			_ = os.Unsetenv(key)
		}
	}
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearEnv(t)
		t.Setenv(config.EnvDotenv, filepath.Join(t.TempDir(), "missing.env"))

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.ResultsDir, convey.ShouldEqual, "grading_results")
				course, err := cfg.Active()
				convey.So(err, convey.ShouldBeNil)
				convey.So(course.TargetMean, convey.ShouldEqual, 70)
				convey.So(len(course.Criteria), convey.ShouldEqual, 6)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			t.Setenv("RUBRIC_ADDR", ":8080")
			t.Setenv("RUBRIC_RESULTS_DIR", "/tmp/results")
			t.Setenv("RUBRIC_WORKER_COUNT", "4")
			t.Setenv("RUBRIC_COURSE", "3702ICT")
			t.Setenv("RUBRIC_COURSES__3702ICT__TARGET_MEAN", "68")

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should override defaults key by key", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ResultsDir, convey.ShouldEqual, "/tmp/results")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
				course, err := cfg.Active()
				convey.So(err, convey.ShouldBeNil)
				convey.So(course.TargetMean, convey.ShouldEqual, 68)
				convey.So(course.TargetMin, convey.ShouldEqual, 55)
				convey.So(course.TargetMax, convey.ShouldEqual, 90)
				convey.So(course.Level, convey.ShouldEqual, "undergraduate")
			})
		})

		convey.Convey("When loading config with a YAML file and env vars", func() {
			path := writeFile(t, "rubric.yaml", `
addr: ":9090"
worker_count: 3
courses:
  7009ICT:
    target_mean: 72
  9999ICT:
    level: graduate
    target_mean: 60
    target_min: 50
    target_max: 80
`)
			t.Setenv("RUBRIC_WORKER_COUNT", "6")

			cfg, err := config.Load(ctx, path)

			convey.Convey("Then env overrides the file and the file overrides defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 6)
				course := cfg.Courses[config.Course7009ICT]
				convey.So(course.TargetMean, convey.ShouldEqual, 72)
				convey.So(course.TargetMax, convey.ShouldEqual, 85)
				extra, ok := cfg.Courses["9999ICT"]
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(extra.Rubric(), convey.ShouldHaveLength, 6)
			})
		})

		convey.Convey("When RUBRIC_CONFIG names the file", func() {
			path := writeFile(t, "c.yaml", "log_level: debug\n")
			t.Setenv(config.EnvConfig, path)

			cfg, err := config.Load(ctx, "")
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
		})

		convey.Convey("When a .env file sets the API key", func() {
			dotenv := writeFile(t, "test.env", "GEMINI_API_KEY=from-dotenv\n")
			t.Setenv(config.EnvDotenv, dotenv)
			t.Setenv(config.EnvGeminiKey, "")
			_ = os.Unsetenv(config.EnvGeminiKey)

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then the key falls back to GEMINI_API_KEY", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.GeminiAPIKey, convey.ShouldEqual, "from-dotenv")
			})
		})

		convey.Convey("When the YAML file is missing", func() {
			_, err := config.Load(ctx, filepath.Join(t.TempDir(), "nope.yaml"))
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the result fails validation", func() {
			t.Setenv("RUBRIC_COURSE", "0000XXX")
			_, err := config.Load(ctx, "")
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestLoadRubric(t *testing.T) {
	convey.Convey("Given rubric override files", t, func() {
		convey.Convey("When the file is well formed", func() {
			path := writeFile(t, "rubric.yaml", `
criteria:
  - name: Coding Quality
    max_score: 60
    evidence: [code, archive]
    guidance: "- Excellent (45.1 to 60 pts): clean code"
  - name: Report
    max_score: 40
`)
			criteria, err := config.LoadRubric(path)

			convey.Convey("Then criteria are read in order", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(criteria, convey.ShouldHaveLength, 2)
				convey.So(criteria[0].MaxScore, convey.ShouldEqual, 60)
				convey.So(criteria[0].Evidence, convey.ShouldHaveLength, 2)
				convey.So(criteria[1].Name, convey.ShouldEqual, "Report")
			})
		})

		convey.Convey("When a field is misspelled", func() {
			path := writeFile(t, "bad.yaml", "criteria:\n  - name: A\n    maxscore: 5\n")
			_, err := config.LoadRubric(path)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When criteria repeat", func() {
			path := writeFile(t, "dup.yaml", "criteria:\n  - name: A\n    max_score: 5\n  - name: A\n    max_score: 5\n")
			_, err := config.LoadRubric(path)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
