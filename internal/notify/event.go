package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicSessionPaid    = "checkout.session.paid"
	TopicAPIKeyIssued   = "merchant.api_key.issued"
	headerEventType     = "event_type"
	headerSchemaVersion = "schema_version"
	schemaVersion       = "1"
)

// Publisher emits follow-on notifications once a session is paid.
type Publisher interface {
	SessionPaid(ctx context.Context, event SessionPaid) error
	APIKeyIssued(ctx context.Context, event APIKeyIssued) error
}

type SessionPaid struct {
	SessionID       string          `json:"session_id"`
	MerchantID      string          `json:"merchant_id"`
	PaymentProvider string          `json:"payment_provider"`
	ProviderRef     string          `json:"provider_ref"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PaidAt          time.Time       `json:"paid_at"`
	InvoiceNumber   string          `json:"invoice_number,omitempty"`
	AccessToken     string          `json:"access_token,omitempty"`
	AccessExpiresAt *time.Time      `json:"access_expires_at,omitempty"`
}

// APIKeyIssued carries the plaintext key. It is sent when the key is created
// and resent by provisioning retries until one send succeeds.
type APIKeyIssued struct {
	MerchantID string    `json:"merchant_id"`
	KeyID      string    `json:"key_id"`
	APIKey     string    `json:"api_key"`
	Scopes     []string  `json:"scopes"`
	IssuedAt   time.Time `json:"issued_at"`
}
