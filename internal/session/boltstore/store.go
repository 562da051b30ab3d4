// Package boltstore keeps sessions in an embedded bolt file for single-node
// deployments that run without a SQL database for session state.
package boltstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Johanhagos/mijn-api/internal/session/domain"
	"github.com/boltdb/bolt"
)

var bucketSessions = []byte("checkout_sessions")

var errVersionMismatch = errors.New("version mismatch")

type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the bolt file at path.
func Open(path string) (*Store, error) {
	conn, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = conn.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Store{db: conn}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return domain.ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	var duplicate bool
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b.Get([]byte(session.ID)) != nil {
			duplicate = true
			return nil
		}
		return b.Put([]byte(session.ID), raw)
	})
	if err != nil {
		return unavailable(err)
	}
	if duplicate {
		return domain.ErrDuplicateID
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSessions).Get([]byte(id)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}
	if raw == nil {
		return nil, domain.ErrNotFound
	}
	var item domain.Session
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, unavailable(err)
	}
	return &item, nil
}

// CompareAndSwap runs inside a single bolt write transaction, which bolt
// serializes, so the version check and the put are atomic.
func (s *Store) CompareAndSwap(ctx context.Context, next *domain.Session, expectedVersion int64) error {
	if next == nil || next.ID == "" {
		return domain.ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		current := b.Get([]byte(next.ID))
		if current == nil {
			return domain.ErrNotFound
		}
		var stored domain.Session
		if err := json.Unmarshal(current, &stored); err != nil {
			return err
		}
		if stored.Version != expectedVersion {
			return errVersionMismatch
		}
		updated := *next
		updated.Version = expectedVersion + 1
		raw, err := json.Marshal(&updated)
		if err != nil {
			return err
		}
		return b.Put([]byte(next.ID), raw)
	})
	switch {
	case err == nil:
		next.Version = expectedVersion + 1
		return nil
	case errors.Is(err, errVersionMismatch):
		return domain.ErrVersionConflict
	case errors.Is(err, domain.ErrNotFound):
		return domain.ErrNotFound
	default:
		return unavailable(err)
	}
}

func (s *Store) ListPaidSince(ctx context.Context, since time.Time, limit int) ([]domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	if limit <= 0 {
		limit = 100
	}
	var items []domain.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(_, v []byte) error {
			var item domain.Session
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			if item.Status == domain.StatusPaid && item.PaidAt != nil && !item.PaidAt.Before(since) {
				items = append(items, item)
			}
			return nil
		})
	})
	if err != nil {
		return nil, unavailable(err)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].PaidAt.Before(*items[j].PaidAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
