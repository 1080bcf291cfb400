package repository

import "os"

// Option applies a configuration option to the FileStore.
type Option func(*FileStore)

// WithSuffix sets the file name suffix that follows the record id.
func WithSuffix(suffix string) Option {
	return func(s *FileStore) {
		if suffix != "" {
			s.suffix = suffix
		}
	}
}

// WithFileMode sets the permission bits of written documents.
func WithFileMode(mode os.FileMode) Option {
	return func(s *FileStore) {
		if mode != 0 {
			s.fileMode = mode
		}
	}
}

// WithDirSync toggles fsync of the directory after each rename.
func WithDirSync(enabled bool) Option {
	return func(s *FileStore) {
		s.dirSync = enabled
	}
}
