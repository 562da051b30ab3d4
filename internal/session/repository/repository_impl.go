package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Johanhagos/mijn-api/internal/session/domain"
	"github.com/Johanhagos/mijn-api/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(conn *gorm.DB) domain.Store {
	return &repo{db: conn}
}

func (r *repo) Insert(ctx context.Context, session *domain.Session) error {
	if session == nil {
		return domain.ErrInvalidID
	}
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrDuplicateID
		}
		return unavailable(err)
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	var item domain.Session
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return &item, nil
}

func (r *repo) CompareAndSwap(ctx context.Context, next *domain.Session, expectedVersion int64) error {
	if next == nil || next.ID == "" {
		return domain.ErrInvalidID
	}
	res := r.db.WithContext(ctx).Exec(
		`UPDATE checkout_sessions
		 SET status = ?, payment_provider = ?, provider_ref = ?, metadata = ?,
			paid_at = ?, updated_at = ?, version = ?
		 WHERE id = ? AND version = ?`,
		next.Status,
		next.PaymentProvider,
		next.ProviderRef,
		next.Metadata,
		next.PaidAt,
		next.UpdatedAt,
		expectedVersion+1,
		next.ID,
		expectedVersion,
	)
	if res.Error != nil {
		return unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	next.Version = expectedVersion + 1
	return nil
}

func (r *repo) ListPaidSince(ctx context.Context, since time.Time, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.Session
	err := r.db.WithContext(ctx).
		Where("status = ? AND paid_at >= ?", domain.StatusPaid, since).
		Order("paid_at ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, unavailable(err)
	}
	return items, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
