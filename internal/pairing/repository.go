package pairing

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/keeperbridge/internal/common"
)

// ErrNotFound is returned for unknown or revoked pairing ids.
var ErrNotFound = fmt.Errorf("pairing %w", common.ErrorNotFound)

// ErrDuplicate is returned when a record id is already taken.
var ErrDuplicate = errors.New("pairing already exists")

// Repository stores pairing records and the server key.
type Repository interface {
	// Create persists a new record.
	Create(ctx context.Context, rec Record) error

	// Get returns the record with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns all records, oldest first.
	List(ctx context.Context) ([]Record, error)

	// Delete removes one record or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every record and reports how many were removed.
	DeleteAll(ctx context.Context) (int64, error)

	// ServerKey returns the persistent server key, creating it on first use.
	ServerKey(ctx context.Context) ([]byte, error)
}
