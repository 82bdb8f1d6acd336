package match

import (
	"context"
	"errors"

	"github.com/artxchange/skillswap/internal/pairing"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("match: not found")

	// ErrDuplicateActive is returned by Store.Create when an active record
	// already exists for the same canonical pair and skill. Stores must detect
	// this atomically at write time.
	ErrDuplicateActive = errors.New("match: active match already exists for pair and skill")

	// ErrStaleStatus is returned by Store.Update when the stored status no
	// longer equals the status the caller read.
	ErrStaleStatus = errors.New("match: status changed concurrently")
)

// Store persists Match records.
type Store interface {
	// Create inserts m. It returns ErrDuplicateActive if m is active and an
	// active record for the same pair and skill exists.
	Create(ctx context.Context, m *Match) error

	Get(ctx context.Context, id string) (*Match, error)

	// FindActive returns the pending or accepted record for pair and skill.
	FindActive(ctx context.Context, pair pairing.Pair, skill string) (*Match, error)

	// Latest returns the most recently updated record for pair, any skill or status.
	Latest(ctx context.Context, pair pairing.Pair) (*Match, error)

	// ListFor returns every record userID participates in, most recently
	// updated first.
	ListFor(ctx context.Context, userID string) ([]Match, error)

	// Update overwrites the mutable fields of m if the stored status still
	// equals expect.
	Update(ctx context.Context, m *Match, expect Status) error

	Delete(ctx context.Context, id string) error
}
