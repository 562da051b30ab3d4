// Package hosted handles the generic hosted-payment-page provider.
package hosted

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Johanhagos/mijn-api/internal/payment/adapters"
	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
)

const signatureHeader = "X-Webhook-Signature"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return paymentdomain.ProviderHosted
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
	var event hostedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	switch strings.TrimSpace(event.Event) {
	case "payment.completed", "payment.succeeded":
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	sessionID := strings.TrimSpace(event.Reference)
	if sessionID == "" {
		return nil, paymentdomain.ErrMissingSessionID
	}
	amount, err := adapters.ParseAmount(event.Amount)
	if err != nil {
		return nil, err
	}
	ref := adapters.FirstNonEmpty(event.Payload.TxnID, event.ID)
	if ref == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	return &paymentdomain.PaymentConfirmed{
		SessionID:   sessionID,
		Provider:    paymentdomain.ProviderHosted,
		Amount:      amount,
		Currency:    adapters.NormalizeCurrency(event.Currency),
		ProviderRef: ref,
		EventID:     strings.TrimSpace(event.ID),
		EventType:   event.Event,
		OccurredAt:  adapters.Timestamp(a.now),
		Raw:         payload,
	}, nil
}

type hostedEvent struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Reference string          `json:"reference"`
	Amount    json.RawMessage `json:"amount"`
	Currency  string          `json:"currency"`
	Payload   struct {
		TxnID string `json:"txn_id"`
	} `json:"payload"`
}
