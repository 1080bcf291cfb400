package model

import (
	"errors"
	"fmt"
)

// Sentinel kinds for record and target errors.
var (
	// ErrData marks a record that is missing required fields or carries
	// values outside its rubric. Such records are skipped, never repaired.
	ErrData = errors.New("invalid record data")
	// ErrConfig marks an unusable target distribution.
	ErrConfig = errors.New("invalid target distribution")
)

// DataError describes why a single record was rejected on ingestion.
type DataError struct {
	RecordID string
	Reason   string
}

func (e *DataError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("invalid record: %s", e.Reason)
	}
	return fmt.Sprintf("invalid record %q: %s", e.RecordID, e.Reason)
}

// Unwrap lets errors.Is(err, ErrData) match.
func (e *DataError) Unwrap() error { return ErrData }

func dataErrorf(id, format string, args ...any) error {
	return &DataError{RecordID: id, Reason: fmt.Sprintf(format, args...)}
}
