package auditlog_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rubric/internal/adapters/auditlog"
	"github.com/okian/rubric/internal/domain/model"
)

func TestJournal(t *testing.T) {
	Convey("Given a sqlite journal in a temp dir", t, func() {
		ctx := context.Background()
		dsn := "file:" + filepath.Join(t.TempDir(), "audit.db")
		journal, err := auditlog.Open(ctx, auditlog.DriverSQLite, dsn)
		So(err, ShouldBeNil)
		Reset(func() { _ = journal.Close() })

		at := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
		audits := []model.NormalizationAudit{
			{
				RunID: "run-1", RecordID: "GC1", NormalizedAt: at, Method: model.MethodTiered,
				OriginalTotal: 90, TargetTotal: 84.8, AchievedTotal: 84.8,
				Target:           model.TargetDistribution{Mean: 70, Min: 55, Max: 85},
				AdjustmentFactor: 0.942, BackupLocation: "/r/pre_normalization_backup",
			},
			{
				RunID: "run-1", RecordID: "GC2", NormalizedAt: at, Method: model.MethodTiered,
				OriginalTotal: 25, TargetTotal: 30, AchievedTotal: 26,
				Target:            model.TargetDistribution{Mean: 70, Min: 55, Max: 85},
				AdjustmentFactor:  1.2,
				ClampedComponents: []string{"Video Presentation"},
				BackupLocation:    "/r/pre_normalization_backup",
			},
		}

		Convey("When appending a run's audits", func() {
			So(journal.Append(ctx, audits), ShouldBeNil)

			Convey("Then each record's history reads back", func() {
				hist, err := journal.History(ctx, "GC2")
				So(err, ShouldBeNil)
				So(hist, ShouldHaveLength, 1)
				So(hist[0].AchievedTotal, ShouldEqual, 26)
				So(hist[0].ClampedComponents, ShouldResemble, []string{"Video Presentation"})
				So(hist[0].NormalizedAt.Equal(at), ShouldBeTrue)
				So(hist[0].Target.Max, ShouldEqual, 85)
			})

			Convey("And a later run adds a new audit instead of replacing", func() {
				second := audits[0]
				second.RunID = "run-2"
				So(journal.Append(ctx, []model.NormalizationAudit{second}), ShouldBeNil)
				hist, err := journal.History(ctx, "GC1")
				So(err, ShouldBeNil)
				So(hist, ShouldHaveLength, 2)
				So(hist[0].RunID, ShouldEqual, "run-1")
				So(hist[1].RunID, ShouldEqual, "run-2")
				So(hist[1].ClampedComponents, ShouldBeNil)
			})
		})

		Convey("When appending nothing", func() {
			So(journal.Append(ctx, nil), ShouldBeNil)
			hist, err := journal.History(ctx, "GC1")
			So(err, ShouldBeNil)
			So(hist, ShouldBeEmpty)
		})
	})

	Convey("Given an unknown driver", t, func() {
		_, err := auditlog.Open(context.Background(), auditlog.Driver("oracle"), "")
		So(errors.Is(err, auditlog.ErrUnsupportedDriver), ShouldBeTrue)
	})
}
