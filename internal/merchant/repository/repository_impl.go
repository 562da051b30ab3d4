package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Johanhagos/mijn-api/internal/config"
	"github.com/Johanhagos/mijn-api/internal/merchant/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type directory struct {
	db             *gorm.DB
	log            *zap.Logger
	defaultCountry string
}

func NewDirectory(db *gorm.DB, cfg config.Config, log *zap.Logger) domain.Directory {
	return &directory{
		db:             db,
		log:            log.Named("merchant.directory"),
		defaultCountry: strings.ToUpper(strings.TrimSpace(cfg.Tax.DefaultSellerCountry)),
	}
}

func (d *directory) Get(ctx context.Context, id string) (*domain.Merchant, error) {
	var item domain.Merchant
	err := d.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(id)).
		Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return &item, nil
}

func (d *directory) SellerCountry(ctx context.Context, id string) (string, error) {
	merchant, err := d.Get(ctx, id)
	switch {
	case err == nil && strings.TrimSpace(merchant.Country) != "":
		return strings.ToUpper(strings.TrimSpace(merchant.Country)), nil
	case err == nil || errors.Is(err, domain.ErrNotFound):
		d.log.Debug("merchant profile has no country, using default",
			zap.String("merchant_id", id),
			zap.String("country", d.defaultCountry),
		)
		return d.defaultCountry, nil
	default:
		return "", err
	}
}
