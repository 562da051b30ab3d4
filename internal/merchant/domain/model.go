package domain

import (
	"context"
	"errors"
	"time"
)

// Merchant is the read-only seller profile. Profile management lives in
// another service; this one only reads it.
type Merchant struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text"`
	Name      string    `json:"name" gorm:"type:text;not null"`
	Country   string    `json:"country" gorm:"type:text;not null"`
	VATNumber string    `json:"vat_number" gorm:"type:text;not null;default:''"`
	Currency  string    `json:"currency" gorm:"type:text;not null;default:'EUR'"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (Merchant) TableName() string { return "merchants" }

var (
	ErrNotFound    = errors.New("merchant_not_found")
	ErrUnavailable = errors.New("merchant_directory_unavailable")
)

type Directory interface {
	Get(ctx context.Context, id string) (*Merchant, error)
	// SellerCountry falls back to the configured default country when the
	// merchant has no profile.
	SellerCountry(ctx context.Context, id string) (string, error)
}
