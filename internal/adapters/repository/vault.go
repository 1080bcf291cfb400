package repository

import (
	"os"
	"path/filepath"
	"time"
)

// Directory names under the results directory.
const (
	BaselineDir  = "pre_normalization_backup"
	SnapshotsDir = "snapshots"
	RefinedDir   = "refined_comments"
)

const snapshotStampLayout = "20060102T150405Z"

// Vault lays out the live store and its backup stores under one results
// directory.
type Vault struct {
	root string
	opts []Option
}

// NewVault creates a vault over resultsDir. Options apply to every store
// it hands out.
func NewVault(resultsDir string, opts ...Option) *Vault {
	return &Vault{root: resultsDir, opts: opts}
}

// Root returns the results directory.
func (v *Vault) Root() string { return v.root }

// Live is the store the graders write and exports read.
func (v *Vault) Live() *FileStore {
	return NewFileStore(v.root, v.opts...)
}

// Baseline holds the pre-normalization copy every run starts from. It is
// written once and never overwritten.
func (v *Vault) Baseline() *FileStore {
	return NewFileStore(filepath.Join(v.root, BaselineDir), v.opts...)
}

// Snapshot is a per-run copy of the live store taken before the run
// mutates it.
func (v *Vault) Snapshot(at time.Time, runID string) *FileStore {
	name := at.UTC().Format(snapshotStampLayout) + "-" + runID
	return NewFileStore(filepath.Join(v.root, SnapshotsDir, name), v.opts...)
}

// Refined holds records whose comments were rewritten for tone.
func (v *Vault) Refined() *FileStore {
	return NewFileStore(filepath.Join(v.root, RefinedDir), v.opts...)
}

// Snapshots lists snapshot directories, oldest first.
func (v *Vault) Snapshots() ([]string, error) {
	items, err := os.ReadDir(filepath.Join(v.root, SnapshotsDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.IsDir() {
			out = append(out, filepath.Join(v.root, SnapshotsDir, it.Name()))
		}
	}
	return out, nil
}
