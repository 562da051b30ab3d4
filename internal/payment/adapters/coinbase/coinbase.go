// Package coinbase handles crypto-commerce charge webhooks.
package coinbase

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Johanhagos/mijn-api/internal/payment/adapters"
	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
)

const signatureHeader = "X-CC-Webhook-Signature"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return paymentdomain.ProviderCoinbase
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	return &Adapter{webhookSecret: strings.TrimSpace(cfg.Secret), now: cfg.Now}, nil
}

type Adapter struct {
	webhookSecret string
	now           func() time.Time
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return paymentdomain.ErrInvalidConfig
	}
	return adapters.VerifyHexSignature(a.webhookSecret, payload, headers.Get(signatureHeader))
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentConfirmed, error) {
	var envelope struct {
		Event chargeEvent `json:"event"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	event := envelope.Event

	switch strings.TrimSpace(event.Type) {
	case "charge:confirmed", "charge:resolved":
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	var charge chargeData
	if err := json.Unmarshal(event.Data, &charge); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	sessionID := adapters.ReadMetadataValue(charge.Metadata, "session_id")
	if sessionID == "" {
		return nil, paymentdomain.ErrMissingSessionID
	}
	amount, err := adapters.ParseAmount(charge.Pricing.Local.Amount)
	if err != nil {
		return nil, err
	}

	return &paymentdomain.PaymentConfirmed{
		SessionID:   sessionID,
		Provider:    paymentdomain.ProviderCoinbase,
		Amount:      amount,
		Currency:    adapters.NormalizeCurrency(charge.Pricing.Local.Currency),
		ProviderRef: adapters.FirstNonEmpty(charge.Code, charge.ID),
		EventID:     eventID,
		EventType:   event.Type,
		OccurredAt:  adapters.ParseTime(a.now, event.CreatedAt),
		Raw:         payload,
	}, nil
}

type chargeEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt string          `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

type chargeData struct {
	ID       string         `json:"id"`
	Code     string         `json:"code"`
	Metadata map[string]any `json:"metadata"`
	Pricing  struct {
		Local struct {
			Amount   json.RawMessage `json:"amount"`
			Currency string          `json:"currency"`
		} `json:"local"`
	} `json:"pricing"`
}
