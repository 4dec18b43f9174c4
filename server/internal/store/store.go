package store

import (
	"context"
	"errors"

	"github.com/floorscore/floorscore/pkg/types"
)

var (
	ErrNotFound = errors.New("store: record not found")
	ErrExists   = errors.New("store: record already exists")
)

// Store is the record persistence boundary. Implementations hand out copies;
// callers may modify returned records freely.
type Store interface {
	// Create inserts rec. CreatedAt and UpdatedAt are stamped by the store.
	Create(ctx context.Context, rec *types.ShiftRecord) error

	Get(ctx context.Context, id string) (*types.ShiftRecord, error)

	// List returns every record ordered by creation time, then ID.
	List(ctx context.Context) ([]*types.ShiftRecord, error)

	// Update replaces an existing record.
	Update(ctx context.Context, rec *types.ShiftRecord) error

	// Mutate applies fn to the stored record atomically and saves the result.
	// If fn returns an error nothing is written and the error is returned as is.
	Mutate(ctx context.Context, id string, fn func(*types.ShiftRecord) error) (*types.ShiftRecord, error)

	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Close() error
}
