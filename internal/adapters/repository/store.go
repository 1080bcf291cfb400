// Package repository persists score records, one JSON document per record.
package repository

import (
	"context"

	"github.com/okian/rubric/internal/domain/model"
)

// Entry is one stored record as loaded. Err is set, usually to a
// *model.DataError, when the document could not be decoded; Record is then
// the zero value.
type Entry struct {
	ID     string
	Path   string
	Record model.ScoreRecord
	Err    error
}

// Store provides read/write access to a set of score records.
type Store interface {
	// Load returns every stored record ordered by id. A document that fails
	// validation is returned with Err set rather than failing the load.
	Load(ctx context.Context) ([]Entry, error)

	// Get returns one record. Returns ErrNotFound if the id is unknown.
	Get(ctx context.Context, id string) (model.ScoreRecord, error)

	// Save validates and durably writes a record, replacing any previous
	// version atomically.
	Save(ctx context.Context, rec model.ScoreRecord) error

	// ReadRaw returns the stored bytes of a record.
	ReadRaw(ctx context.Context, id string) ([]byte, error)

	// WriteRaw durably writes bytes under id without decoding them.
	WriteRaw(ctx context.Context, id string, data []byte) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) int

	// Location names where the store keeps its documents.
	Location() string
}

// Copy duplicates one stored document byte for byte.
func Copy(ctx context.Context, src, dst Store, id string) error {
	data, err := src.ReadRaw(ctx, id)
	if err != nil {
		return err
	}
	return dst.WriteRaw(ctx, id, data)
}
