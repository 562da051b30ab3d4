package repository

import (
	"context"
	"errors"

	"github.com/Johanhagos/mijn-api/internal/invoice/domain"
	"github.com/Johanhagos/mijn-api/pkg/db"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) domain.Repository {
	return &repository{db: conn}
}

func (r *repository) Insert(ctx context.Context, invoice *domain.Invoice) error {
	if err := r.db.WithContext(ctx).Create(invoice).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrDuplicateInvoice
		}
		return err
	}
	return nil
}

func (r *repository) FindBySessionID(ctx context.Context, sessionID string) (*domain.Invoice, error) {
	var item domain.Invoice
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}
