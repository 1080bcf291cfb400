package evidence_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rubric/internal/adapters/evidence"
	"github.com/okian/rubric/internal/domain/scoring"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for _, name := range []string{"Assets/Scripts/Player.cs", "README.bin", "src/app.py"} {
		body, ok := files[name]
		if !ok {
			continue
		}
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestCollector(t *testing.T) {
	Convey("Given a submission directory", t, func() {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "videos", "demo.mp4"), []byte("not really a video"))
		writeFile(t, filepath.Join(dir, "videos", "empty.mov"), nil)
		writeFile(t, filepath.Join(dir, "video_frames", "frame_0.jpg"), []byte{0xff, 0xd8, 0xff})
		writeFile(t, filepath.Join(dir, "documents", "report.pdf"), []byte("%PDF-1.4"))
		writeFile(t, filepath.Join(dir, "documents", "slides.pptx"), []byte("pk"))
		writeFile(t, filepath.Join(dir, "documents", "notes.md"), []byte("# Roles\nAlice did AR"))
		writeFile(t, filepath.Join(dir, "source_code", "main.cs"), []byte("class Main {}"))
		writeFile(t, filepath.Join(dir, "source_code", "binary.exe"), []byte{0, 1})
		writeFile(t, filepath.Join(dir, ".git", "HEAD"), []byte("ref"))
		writeZip(t, filepath.Join(dir, "source_code", "project.zip"), map[string]string{
			"Assets/Scripts/Player.cs": "public class Player {}",
			"README.bin":               "skip me",
			"src/app.py":               "print('hi')",
		})

		collector := evidence.NewCollector()

		Convey("When collecting", func() {
			items, err := collector.Collect(context.Background(), dir)
			So(err, ShouldBeNil)

			kinds := map[string]scoring.EvidenceKind{}
			byName := map[string]scoring.Evidence{}
			for _, it := range items {
				kinds[it.Name] = it.Kind
				byName[it.Name] = it
			}

			Convey("Then files are classified by kind", func() {
				So(kinds["demo.mp4"], ShouldEqual, scoring.EvidenceVideo)
				So(kinds["frame_0.jpg"], ShouldEqual, scoring.EvidenceImage)
				So(kinds["report.pdf"], ShouldEqual, scoring.EvidenceDocument)
				So(kinds["slides.pptx"], ShouldEqual, scoring.EvidenceDocument)
				So(kinds["notes.md"], ShouldEqual, scoring.EvidenceDocument)
				So(kinds["main.cs"], ShouldEqual, scoring.EvidenceCode)
				So(kinds["project.zip"], ShouldEqual, scoring.EvidenceArchive)
			})

			Convey("And empty videos, unknown types and hidden dirs are skipped", func() {
				So(kinds, ShouldNotContainKey, "empty.mov")
				So(kinds, ShouldNotContainKey, "binary.exe")
				So(kinds, ShouldNotContainKey, "HEAD")
				So(items, ShouldHaveLength, 7)
			})

			Convey("And content is attached where it can be inlined", func() {
				So(byName["frame_0.jpg"].Data, ShouldResemble, []byte{0xff, 0xd8, 0xff})
				So(byName["report.pdf"].Data, ShouldNotBeEmpty)
				So(byName["slides.pptx"].Text, ShouldContainSubstring, "slides.pptx")
				So(byName["main.cs"].Text, ShouldEqual, "class Main {}")
				So(byName["demo.mp4"].Data, ShouldBeNil)
			})

			Convey("And archives are expanded to their source files only", func() {
				text := byName["project.zip"].Text
				So(text, ShouldContainSubstring, "// File: Assets/Scripts/Player.cs")
				So(text, ShouldContainSubstring, "print('hi')")
				So(text, ShouldNotContainSubstring, "skip me")
			})

			Convey("And Filter keeps what a criterion accepts", func() {
				code := scoring.Criterion{Name: "Coding Quality", Evidence: []scoring.EvidenceKind{scoring.EvidenceCode, scoring.EvidenceArchive}}
				filtered := evidence.Filter(items, code)
				So(filtered, ShouldHaveLength, 2)
			})
		})

		Convey("When text limits are small", func() {
			small := evidence.NewCollector(evidence.WithMaxTextBytes(5))
			items, err := small.Collect(context.Background(), filepath.Join(dir, "source_code"))
			So(err, ShouldBeNil)
			for _, it := range items {
				if it.Name == "main.cs" {
					So(it.Text, ShouldStartWith, "class")
					So(strings.HasSuffix(it.Text, "[truncated]"), ShouldBeTrue)
				}
			}
		})
	})

	Convey("Given a broken archive", t, func() {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "code.zip"), []byte("garbage"))
		items, err := evidence.NewCollector().Collect(context.Background(), dir)
		So(err, ShouldBeNil)
		So(items, ShouldHaveLength, 1)
		So(items[0].Text, ShouldContainSubstring, "Error reading ZIP file")
	})

	Convey("Given a path that is not a directory", t, func() {
		file := filepath.Join(t.TempDir(), "x.txt")
		writeFile(t, file, []byte("x"))
		_, err := evidence.NewCollector().Collect(context.Background(), file)
		So(errors.Is(err, evidence.ErrNotDirectory), ShouldBeTrue)
	})

	Convey("Given a submissions root", t, func() {
		root := t.TempDir()
		for _, g := range []string{"GC2", "GC1", ".cache"} {
			So(os.MkdirAll(filepath.Join(root, g), 0o755), ShouldBeNil)
		}
		writeFile(t, filepath.Join(root, "readme.txt"), []byte("x"))
		groups, err := evidence.Submissions(root)
		So(err, ShouldBeNil)
		So(groups, ShouldResemble, []string{"GC1", "GC2"})
	})
}
