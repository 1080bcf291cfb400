// Package evidence collects the artifacts of a submission directory for
// grading.
package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/okian/rubric/internal/domain/scoring"
)

// Default collection limits.
const (
	defaultMaxInlineBytes = 8 << 20
	defaultMaxTextBytes   = 256 << 10
)

// ErrNotDirectory is returned when the submission path is not a directory.
var ErrNotDirectory = errors.New("submission path is not a directory")

var (
	videoTypes = map[string]string{
		".mp4": "video/mp4", ".avi": "video/x-msvideo", ".mov": "video/quicktime",
		".mkv": "video/x-matroska", ".wmv": "video/x-ms-wmv",
	}
	imageTypes = map[string]string{
		".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".png": "image/png", ".gif": "image/gif",
	}
	textDocTypes = map[string]string{
		".txt": "text/plain", ".md": "text/markdown",
	}
	binaryDocTypes = map[string]string{
		".pdf":  "application/pdf",
		".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	}
	defaultCodeExtensions = []string{
		".cs", ".py", ".js", ".ts", ".cpp", ".c", ".h", ".java", ".kt", ".swift", ".css", ".html", ".go",
	}
)

// Option applies a configuration option to the Collector.
type Option func(*Collector)

// WithMaxInlineBytes caps the size of media read into memory.
func WithMaxInlineBytes(n int64) Option {
	return func(c *Collector) {
		if n > 0 {
			c.maxInline = n
		}
	}
}

// WithMaxTextBytes caps extracted text per artifact.
func WithMaxTextBytes(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.maxText = n
		}
	}
}

// WithCodeExtensions replaces the recognized source file extensions.
func WithCodeExtensions(exts ...string) Option {
	return func(c *Collector) {
		if len(exts) == 0 {
			return
		}
		c.codeExt = make(map[string]struct{}, len(exts))
		for _, e := range exts {
			c.codeExt[strings.ToLower(e)] = struct{}{}
		}
	}
}

// Collector walks submission directories.
type Collector struct {
	maxInline int64
	maxText   int
	codeExt   map[string]struct{}
}

// NewCollector creates a collector with default limits.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{maxInline: defaultMaxInlineBytes, maxText: defaultMaxTextBytes}
	WithCodeExtensions(defaultCodeExtensions...)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submissions lists the immediate subdirectories of root, one per group.
func Submissions(root string) ([]string, error) {
	items, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	var out []string
	for _, it := range items {
		if it.IsDir() && !strings.HasPrefix(it.Name(), ".") {
			out = append(out, it.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Collect classifies every file under dir. Unsupported files are skipped.
// Output is ordered by path.
func (c *Collector) Collect(ctx context.Context, dir string) ([]scoring.Evidence, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	var out []scoring.Evidence
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ev, ok, err := c.classify(path)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", dir, err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (c *Collector) classify(path string) (scoring.Evidence, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return scoring.Evidence{}, false, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	ev := scoring.Evidence{Name: filepath.Base(path), Path: path, Size: info.Size()}

	switch {
	case videoTypes[ext] != "":
		if info.Size() == 0 {
			return scoring.Evidence{}, false, nil
		}
		ev.Kind, ev.MIMEType = scoring.EvidenceVideo, videoTypes[ext]
	case imageTypes[ext] != "":
		ev.Kind, ev.MIMEType = scoring.EvidenceImage, imageTypes[ext]
		if info.Size() > c.maxInline {
			return scoring.Evidence{}, false, nil
		}
		if ev.Data, err = os.ReadFile(path); err != nil {
			return scoring.Evidence{}, false, err
		}
	case c.isCode(ext):
		ev.Kind, ev.MIMEType = scoring.EvidenceCode, "text/plain"
		if ev.Text, err = c.readText(path); err != nil {
			return scoring.Evidence{}, false, err
		}
	case textDocTypes[ext] != "":
		ev.Kind, ev.MIMEType = scoring.EvidenceDocument, textDocTypes[ext]
		if ev.Text, err = c.readText(path); err != nil {
			return scoring.Evidence{}, false, err
		}
	case binaryDocTypes[ext] != "":
		ev.Kind, ev.MIMEType = scoring.EvidenceDocument, binaryDocTypes[ext]
		ev.Text = fmt.Sprintf("Document file: %s (Type: %s)", ev.Name, ext)
		if ext == ".pdf" && info.Size() <= c.maxInline {
			if ev.Data, err = os.ReadFile(path); err != nil {
				return scoring.Evidence{}, false, err
			}
		}
	case ext == ".zip":
		ev.Kind, ev.MIMEType = scoring.EvidenceArchive, "application/zip"
		ev.Text = c.archiveText(path)
	default:
		return scoring.Evidence{}, false, nil
	}
	return ev, true, nil
}

func (c *Collector) isCode(ext string) bool {
	_, ok := c.codeExt[ext]
	return ok
}

func (c *Collector) readText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	return limitText(f, c.maxText)
}

// archiveText concatenates the source files of a zip archive. Unreadable
// archives produce a note instead of an error so grading can continue.
func (c *Collector) archiveText(path string) string {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Sprintf("Error reading ZIP file: %s", filepath.Base(path))
	}
	defer func() { _ = r.Close() }()

	var b strings.Builder
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !c.isCode(strings.ToLower(filepath.Ext(f.Name))) {
			continue
		}
		if b.Len() >= c.maxText {
			b.WriteString("// [archive truncated]\n")
			break
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		text, err := limitText(rc, c.maxText-b.Len())
		_ = rc.Close()
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "// File: %s\n%s\n\n", f.Name, text)
	}
	if b.Len() == 0 {
		return fmt.Sprintf("ZIP file contains no readable code files. Archive: %s", filepath.Base(path))
	}
	return b.String()
}

func limitText(r io.Reader, limit int) (string, error) {
	if limit <= 0 {
		return "", nil
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return "", err
	}
	truncated := len(data) > limit
	if truncated {
		data = data[:limit]
	}
	text := string(bytes.ToValidUTF8(data, nil))
	if truncated {
		text += "\n[truncated]"
	}
	return text, nil
}

// Filter returns the evidence a criterion accepts.
func Filter(items []scoring.Evidence, c scoring.Criterion) []scoring.Evidence {
	out := make([]scoring.Evidence, 0, len(items))
	for _, it := range items {
		if c.Accepts(it.Kind) {
			out = append(out, it)
		}
	}
	return out
}
