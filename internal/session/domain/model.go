package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Metadata is the free-form part of a session persisted as JSON.
type Metadata struct {
	BuyerCountry   string   `json:"buyer_country"`
	BuyerTaxID     string   `json:"buyer_tax_id,omitempty"`
	WebhookSources []string `json:"webhook_sources"`
	FailureReason  string   `json:"failure_reason,omitempty"`
}

// AddWebhookSource appends provider once. It reports whether the list changed.
func (m *Metadata) AddWebhookSource(provider string) bool {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || slices.Contains(m.WebhookSources, provider) {
		return false
	}
	m.WebhookSources = append(m.WebhookSources, provider)
	return true
}

// Session is a checkout session awaiting payment.
type Session struct {
	ID              string                       `json:"id" gorm:"primaryKey;type:text"`
	MerchantID      string                       `json:"merchant_id" gorm:"type:text;not null;index"`
	Amount          decimal.Decimal              `json:"amount" gorm:"type:numeric(18,2);not null"`
	Currency        string                       `json:"currency" gorm:"type:text;not null"`
	Mode            Mode                         `json:"mode" gorm:"type:text;not null"`
	Status          Status                       `json:"status" gorm:"type:text;not null;index"`
	PaymentProvider string                       `json:"payment_provider" gorm:"type:text;not null;default:''"`
	ProviderRef     string                       `json:"provider_ref" gorm:"type:text;not null;default:''"`
	Metadata        datatypes.JSONType[Metadata] `json:"metadata" gorm:"type:json;not null"`
	Version         int64                        `json:"version" gorm:"not null;default:1"`
	CreatedAt       time.Time                    `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time                    `json:"updated_at" gorm:"not null"`
	PaidAt          *time.Time                   `json:"paid_at" gorm:"index"`
}

func (Session) TableName() string { return "checkout_sessions" }

// Clone returns a deep copy suitable for mutation before a compare-and-swap.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	meta := s.Metadata.Data()
	meta.WebhookSources = slices.Clone(meta.WebhookSources)
	out.Metadata = datatypes.NewJSONType(meta)
	if s.PaidAt != nil {
		paidAt := *s.PaidAt
		out.PaidAt = &paidAt
	}
	return &out
}

// Meta returns a copy of the session metadata.
func (s *Session) Meta() Metadata {
	return s.Metadata.Data()
}

func (s *Session) SetMeta(meta Metadata) {
	s.Metadata = datatypes.NewJSONType(meta)
}

// StatusView is the public read model of a session.
type StatusView struct {
	Status          Status          `json:"status"`
	PaymentProvider *string         `json:"payment_provider"`
	PaidAt          *time.Time      `json:"paid_at"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (s *Session) View() StatusView {
	var provider *string
	if s.PaymentProvider != "" {
		value := s.PaymentProvider
		provider = &value
	}
	return StatusView{
		Status:          s.Status,
		PaymentProvider: provider,
		PaidAt:          s.PaidAt,
		Amount:          s.Amount,
		Currency:        s.Currency,
		CreatedAt:       s.CreatedAt,
	}
}
