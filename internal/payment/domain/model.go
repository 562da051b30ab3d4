package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Provider keys as they appear in POST /webhooks/:provider.
const (
	ProviderCard     = "card"
	ProviderPayPal   = "paypal"
	ProviderCoinbase = "coinbase"
	ProviderHosted   = "hosted"
	ProviderChain    = "chain"
)

// EventRecord is one webhook delivery kept for audit.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event"`
	SessionID       string         `json:"session_id" gorm:"type:text;not null;default:'';index"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Outcome         string         `json:"outcome" gorm:"type:text;not null;default:''"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:json;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

// PaymentConfirmed is the provider-agnostic "this session was paid" event
// produced by an adapter.
type PaymentConfirmed struct {
	SessionID   string
	Provider    string
	Amount      decimal.Decimal
	Currency    string
	ProviderRef string
	EventID     string
	EventType   string
	OccurredAt  time.Time
	Raw         []byte
}

// AdapterConfig is what a factory needs to build an adapter for one provider.
type AdapterConfig struct {
	Secret           string
	WebhookID        string
	Tolerance        time.Duration
	MinConfirmations int
	Now              func() time.Time
}
