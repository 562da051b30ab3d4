package repository

import (
	"context"

	apikeydomain "github.com/Johanhagos/mijn-api/internal/apikey/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() apikeydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO api_keys (id, merchant_id, key_id, scopes, key_hash, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID,
		key.MerchantID,
		key.KeyID,
		key.Scopes,
		key.KeyHash,
		key.IsActive,
		key.CreatedAt,
		key.UpdatedAt,
	).Error
}

func (r *repo) FindByMerchantID(ctx context.Context, db *gorm.DB, merchantID string) (*apikeydomain.APIKey, error) {
	return r.findOne(ctx, db, "merchant_id", merchantID)
}

func (r *repo) FindByKeyID(ctx context.Context, db *gorm.DB, keyID string) (*apikeydomain.APIKey, error) {
	return r.findOne(ctx, db, "key_id", keyID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, column, value string) (*apikeydomain.APIKey, error) {
	var key apikeydomain.APIKey
	err := db.WithContext(ctx).Raw(
		`SELECT id, merchant_id, key_id, scopes, key_hash, is_active, created_at, updated_at
		 FROM api_keys WHERE `+column+` = ? LIMIT 1`,
		value,
	).Scan(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}
