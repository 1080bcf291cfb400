package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rubric/internal/domain/model"
)

func sampleRecords() []model.ScoreRecord {
	gc1 := model.ScoreRecord{
		ID: "GC1",
		Components: []model.ComponentScore{
			{Name: "Video Presentation", Score: 28, MaxScore: 35, Comment: "Clear demo.\n\nGood pacing."},
			{Name: "Coding Quality", Score: 15.5, MaxScore: 20, Comment: "Readable   code."},
		},
		GradedAt: time.Date(2025, 5, 1, 10, 30, 0, 0, time.UTC),
		Model:    "gemini-2.5-flash",
	}
	gc1.Recompute()
	gc2 := model.ScoreRecord{
		ID: "GC2",
		Components: []model.ComponentScore{
			{Name: "Coding Quality", Score: 12, MaxScore: 20},
			{Name: "Testing & Validation", Score: 6, MaxScore: 10, Comment: "Some tests."},
		},
		Partial: true,
		Normalization: &model.NormalizationAudit{
			OriginalTotal:    16,
			AdjustmentFactor: 1.125,
		},
	}
	gc2.Recompute()
	return []model.ScoreRecord{gc1, gc2}
}

func readCSV(data []byte) [][]string {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	So(err, ShouldBeNil)
	return rows
}

func TestSummary(t *testing.T) {
	Convey("Given graded records", t, func() {
		records := sampleRecords()

		Convey("When writing the summary report", func() {
			var buf bytes.Buffer
			So(New().Summary(&buf, records), ShouldBeNil)
			rows := readCSV(buf.Bytes())

			Convey("Then every criterion and total has a row", func() {
				So(rows[0], ShouldResemble, []string{"Group Name", "Scoring Criteria", "Achieved Score", "Max Score", "Comments/Feedback"})
				So(len(rows), ShouldEqual, 1+3+1+3)
				So(rows[1], ShouldResemble, []string{"GC1", "Video Presentation", "28", "35", "Clear demo. Good pacing."})
				So(rows[2][4], ShouldEqual, "Readable code.")
				So(rows[3][:4], ShouldResemble, []string{"GC1", "TOTAL SCORE", "43.5", "55"})
				So(rows[4], ShouldResemble, []string{"", "", "", "", ""})
				So(rows[5][4], ShouldEqual, "No comment available")
			})
		})

		Convey("When refined comments are supplied", func() {
			refined := records[0].Clone()
			refined.Components[1].Comment = "The code is well organised."
			var buf bytes.Buffer
			So(New(WithRefined([]model.ScoreRecord{refined})).Summary(&buf, records), ShouldBeNil)
			rows := readCSV(buf.Bytes())

			Convey("Then they replace the live comments by component", func() {
				So(rows[2][4], ShouldEqual, "The code is well organised.")
				So(rows[1][4], ShouldEqual, "Clear demo. Good pacing.")
			})
		})

		Convey("When there are no records", func() {
			err := New().Summary(&bytes.Buffer{}, nil)
			So(errors.Is(err, ErrNoRecords), ShouldBeTrue)
		})
	})
}

func TestDetailed(t *testing.T) {
	Convey("Given records with different criteria", t, func() {
		records := sampleRecords()

		Convey("When writing the detailed report with a fixed column order", func() {
			var buf bytes.Buffer
			exp := New(WithCriteria("Coding Quality"))
			So(exp.Detailed(&buf, records), ShouldBeNil)
			rows := readCSV(buf.Bytes())

			Convey("Then there is one row per record with per criterion columns", func() {
				So(len(rows), ShouldEqual, 3)
				So(rows[0][4], ShouldEqual, "Coding Quality Score")
				So(rows[0][6], ShouldEqual, "Video Presentation Score")
				So(rows[0][8], ShouldEqual, "Testing & Validation Score")
				So(rows[1][:4], ShouldResemble, []string{"GC1", "2025-05-01 10:30", "gemini-2.5-flash", "false"})
				So(rows[1][8], ShouldEqual, "")
				So(rows[2][6], ShouldEqual, "")
			})

			Convey("Then normalization details are included", func() {
				tail := rows[2][len(rows[2])-5:]
				So(tail, ShouldResemble, []string{"18", "30", "16", "1.1250", "Original"})
				So(rows[1][len(rows[1])-3], ShouldEqual, "")
			})
		})
	})
}

func TestWriteFile(t *testing.T) {
	Convey("Given an output directory", t, func() {
		dir := t.TempDir()
		at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

		Convey("When writing a refined summary", func() {
			exp := New(WithRefined(sampleRecords()[:1]))
			path, err := exp.WriteFile(dir, "7009ICT", KindSummary, at, sampleRecords())

			Convey("Then the file is named after the course and kind", func() {
				So(err, ShouldBeNil)
				So(filepath.Base(path), ShouldEqual, "7009ICT_evaluation_refined_report_20250602_090000.csv")
				data, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				So(strings.HasPrefix(string(data), "Group Name,"), ShouldBeTrue)
			})
		})

		Convey("When rendering fails", func() {
			_, err := New().WriteFile(dir, "", KindDetailed, at, nil)

			Convey("Then no file is left behind", func() {
				So(errors.Is(err, ErrNoRecords), ShouldBeTrue)
				entries, _ := os.ReadDir(dir)
				So(entries, ShouldBeEmpty)
			})
		})

		Convey("When the kind is unknown", func() {
			_, err := New().WriteFile(dir, "", "pdf", at, sampleRecords())
			So(err, ShouldNotBeNil)
		})
	})
}

func TestCleanComment(t *testing.T) {
	Convey("Comments are flattened for spreadsheets", t, func() {
		So(CleanComment("a\r\nb\t c  "), ShouldEqual, "a b c")
		So(CleanComment(" \n "), ShouldEqual, noComment)
	})
}
