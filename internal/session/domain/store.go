package domain

import (
	"context"
	"time"
)

// Store persists sessions. Writes go through CompareAndSwap so concurrent
// deliveries for the same session serialize on the version column while
// unrelated sessions never contend.
type Store interface {
	Insert(ctx context.Context, session *Session) error
	// FindByID returns ErrNotFound for a missing id and ErrStoreUnavailable
	// when the backend could not answer.
	FindByID(ctx context.Context, id string) (*Session, error)
	// CompareAndSwap writes next only if the stored version equals
	// expectedVersion, returning ErrVersionConflict otherwise. On success
	// next.Version is advanced.
	CompareAndSwap(ctx context.Context, next *Session, expectedVersion int64) error
	ListPaidSince(ctx context.Context, since time.Time, limit int) ([]Session, error)
}
