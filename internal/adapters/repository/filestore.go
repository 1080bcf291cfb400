package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/okian/rubric/internal/domain/model"
	"github.com/okian/rubric/pkg/metrics"
)

// DefaultSuffix follows the record id in stored file names.
const DefaultSuffix = "_grading_results.json"

const defaultFileMode os.FileMode = 0o644

// FileStore keeps each record in <dir>/<id><suffix>. Writes go to a temp
// file that is synced and renamed over the target.
type FileStore struct {
	dir      string
	suffix   string
	fileMode os.FileMode
	dirSync  bool
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string, opts ...Option) *FileStore {
	s := &FileStore{
		dir:      dir,
		suffix:   DefaultSuffix,
		fileMode: defaultFileMode,
		dirSync:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the store directory.
func (s *FileStore) Location() string { return s.dir }

// Load decodes every document in the directory. A missing directory is an
// empty store.
func (s *FileStore) Load(ctx context.Context) ([]Entry, error) {
	ids, err := s.ids()
	if err != nil {
		metrics.RecordStoreOperation("load", "error")
		return nil, &PersistenceError{RecordID: s.dir, Op: "list", Err: err}
	}
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := Entry{ID: id, Path: s.path(id)}
		data, err := os.ReadFile(e.Path)
		if err != nil {
			e.Err = &PersistenceError{RecordID: id, Op: "read", Err: err}
			entries = append(entries, e)
			continue
		}
		e.Record, e.Err = s.decode(id, data)
		entries = append(entries, e)
	}
	metrics.RecordStoreOperation("load", "ok")
	return entries, nil
}

// Get reads and decodes one record.
func (s *FileStore) Get(ctx context.Context, id string) (model.ScoreRecord, error) {
	data, err := s.ReadRaw(ctx, id)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	return s.decode(id, data)
}

// Save validates rec and writes it atomically.
func (s *FileStore) Save(ctx context.Context, rec model.ScoreRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	data, err := model.EncodeRecord(rec)
	if err != nil {
		return &PersistenceError{RecordID: rec.ID, Op: "encode", Err: err}
	}
	return s.WriteRaw(ctx, rec.ID, data)
}

// ReadRaw returns the stored bytes for id.
func (s *FileStore) ReadRaw(ctx context.Context, id string) ([]byte, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		metrics.RecordStoreOperation("read", "not_found")
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		metrics.RecordStoreOperation("read", "error")
		return nil, &PersistenceError{RecordID: id, Op: "read", Err: err}
	}
	metrics.RecordStoreOperation("read", "ok")
	return data, nil
}

// WriteRaw writes data under id via temp file, fsync and rename.
func (s *FileStore) WriteRaw(ctx context.Context, id string, data []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.writeAtomic(s.path(id), data); err != nil {
		metrics.RecordStoreOperation("write", "error")
		return &PersistenceError{RecordID: id, Op: "write", Err: err}
	}
	metrics.RecordStoreOperation("write", "ok")
	return nil
}

// Count returns the number of documents, or 0 if the directory cannot be
// listed.
func (s *FileStore) Count(_ context.Context) int {
	ids, err := s.ids()
	if err != nil {
		return 0
	}
	return len(ids)
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+s.suffix)
}

func (s *FileStore) ids() ([]string, error) {
	items, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		name := it.Name()
		if it.IsDir() || !strings.HasSuffix(name, s.suffix) || strings.HasPrefix(name, ".") {
			continue
		}
		if id := strings.TrimSuffix(name, s.suffix); id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) decode(id string, data []byte) (model.ScoreRecord, error) {
	rec, err := model.DecodeRecord(data, id)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	if rec.ID != id {
		return model.ScoreRecord{}, &model.DataError{
			RecordID: id,
			Reason:   fmt.Sprintf("record id %q does not match file name", rec.ID),
		}
	}
	return rec, nil
}

func (s *FileStore) writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, s.fileMode); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	if s.dirSync {
		return syncDir(s.dir)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}

func checkID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
