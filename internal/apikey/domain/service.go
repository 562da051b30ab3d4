package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

const (
	ScopeCheckoutWrite = "checkout:write"
	ScopeInvoiceRead   = "invoice:read"
)

// DefaultScopes are granted to keys issued on first payment.
var DefaultScopes = []string{ScopeCheckoutWrite, ScopeInvoiceRead}

type Service interface {
	// EnsureForMerchant returns the merchant's key, creating it when absent.
	// secret holds the plaintext key only when created is true.
	EnsureForMerchant(ctx context.Context, merchantID string) (key *APIKey, secret string, created bool, err error)
	Authenticate(ctx context.Context, plain string) (*APIKey, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindByMerchantID(ctx context.Context, db *gorm.DB, merchantID string) (*APIKey, error)
	FindByKeyID(ctx context.Context, db *gorm.DB, keyID string) (*APIKey, error)
}

var (
	ErrInvalidMerchant = errors.New("invalid_merchant_id")
	ErrInvalidKey      = errors.New("invalid_api_key")
	ErrNotFound        = errors.New("not_found")
)
