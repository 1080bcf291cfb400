package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound    = errors.New("record not found")
	ErrInvalidID   = errors.New("invalid record id")
	ErrPersistence = errors.New("persistence failure")
)

// PersistenceError is a failed read or write of one record.
type PersistenceError struct {
	RecordID string
	Op       string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.RecordID, e.Err)
}

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Unwrap returns the underlying error.
func (e *PersistenceError) Unwrap() error { return e.Err }
