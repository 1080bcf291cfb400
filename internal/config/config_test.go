package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/rubric/internal/config"
	"github.com/okian/rubric/internal/domain/scoring"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Course, convey.ShouldEqual, config.Course7009ICT)
			convey.So(cfg.SkipTolerance, convey.ShouldEqual, 2.0)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then both course variants are present", func() {
			grad, ok := cfg.Courses[config.Course7009ICT]
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(grad.Level, convey.ShouldEqual, scoring.LevelGraduate)
			convey.So(grad.Target().Mean, convey.ShouldEqual, 70)
			convey.So(grad.Target().Min, convey.ShouldEqual, 55)
			convey.So(grad.Target().Max, convey.ShouldEqual, 85)

			under := cfg.Courses[config.Course3702ICT]
			convey.So(under.Level, convey.ShouldEqual, scoring.LevelUndergraduate)
			convey.So(under.Target().Mean, convey.ShouldEqual, 65)
			convey.So(under.Target().Max, convey.ShouldEqual, 90)
			convey.So(cfg.CourseNames(), convey.ShouldResemble, []string{"3702ICT", "7009ICT"})
		})

		convey.Convey("Then the default rubric totals 100 points", func() {
			var total float64
			for _, c := range config.DefaultRubric() {
				total += c.MaxScore
			}
			convey.So(total, convey.ShouldEqual, 100)
			convey.So(len(config.DefaultRubric()), convey.ShouldEqual, 6)
		})

		convey.Convey("Then derived durations follow the raw settings", func() {
			convey.So(cfg.RequestTimeout(), convey.ShouldEqual, 2*time.Minute)
			convey.So(cfg.RequestInterval(), convey.ShouldEqual, time.Second)
			cfg.MaxAttempts, cfg.RetryBaseDelayMS = 5, 10
			p := cfg.RetryPolicy()
			convey.So(p.MaxAttempts, convey.ShouldEqual, 5)
			convey.So(p.BaseDelay, convey.ShouldEqual, 10*time.Millisecond)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs that break a rule", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"empty results dir", func(c *config.Config) { c.ResultsDir = " " }},
			{"unknown course", func(c *config.Config) { c.Course = "1000XYZ" }},
			{"inverted range", func(c *config.Config) {
				course := c.Courses[config.Course7009ICT]
				course.TargetMin, course.TargetMax = 85, 55
				c.Courses[config.Course7009ICT] = course
			}},
			{"mean outside range", func(c *config.Config) {
				course := c.Courses[config.Course7009ICT]
				course.TargetMean = 95
				c.Courses[config.Course7009ICT] = course
			}},
			{"negative tolerance", func(c *config.Config) { c.SkipTolerance = -1 }},
			{"no workers", func(c *config.Config) { c.WorkerCount = 0 }},
			{"unknown audit driver", func(c *config.Config) { c.AuditDriver = "mysql" }},
		}
		for _, tc := range cases {
			convey.Convey("When the config has "+tc.name, func() {
				cfg := config.New()
				tc.mutate(cfg)
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}

		convey.Convey("When the course differs only in case", func() {
			cfg := config.New()
			cfg.Course = "3702ict"
			course, err := cfg.Active()
			convey.So(err, convey.ShouldBeNil)
			convey.So(course.Level, convey.ShouldEqual, scoring.LevelUndergraduate)
		})

		convey.Convey("When the course is unknown or the rubric is broken", func() {
			cfg := config.New()
			cfg.Course = "1000XYZ"
			convey.So(errors.Is(cfg.Validate(), config.ErrUnknownCourse), convey.ShouldBeTrue)

			err := config.ValidateRubric([]scoring.Criterion{{Name: "Coding Quality", MaxScore: 0}})
			convey.So(errors.Is(err, config.ErrInvalidRubric), convey.ShouldBeTrue)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
