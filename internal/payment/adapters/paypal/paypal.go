// Package paypal handles PayPal-style webhooks. The transmission signature
// is an HMAC over the transmission headers and the CRC32 of the body.
package paypal

import (
	"context"
	"crypto/hmac"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"net/http"
	"strings"
	"time"

	"github.com/Johanhagos/mijn-api/internal/payment/adapters"
	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
)

const (
	headerTransmissionID   = "Paypal-Transmission-Id"
	headerTransmissionTime = "Paypal-Transmission-Time"
	headerTransmissionSig  = "Paypal-Transmission-Sig"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return paymentdomain.ProviderPayPal
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	return &Adapter{
		webhookSecret: strings.TrimSpace(cfg.Secret),
		webhookID:     strings.TrimSpace(cfg.WebhookID),
		now:           cfg.Now,
	}, nil
}

type Adapter struct {
	webhookSecret string
	webhookID     string
	now           func() time.Time
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return paymentdomain.ErrInvalidConfig
	}
	transmissionID := strings.TrimSpace(headers.Get(headerTransmissionID))
	transmissionTime := strings.TrimSpace(headers.Get(headerTransmissionTime))
	signature := strings.TrimSpace(headers.Get(headerTransmissionSig))
	if transmissionID == "" || transmissionTime == "" || signature == "" {
		return paymentdomain.ErrInvalidSignature
	}

	provided, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	expected := adapters.HMACSHA256(a.webhookSecret, []byte(SigningString(transmissionID, transmissionTime, a.webhookID, payload)))
	if !hmac.Equal(provided, expected) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

// SigningString is the message covered by the transmission signature.
func SigningString(transmissionID, transmissionTime, webhookID string, payload []byte) string {
	return fmt.Sprintf("%s|%s|%s|%d", transmissionID, transmissionTime, webhookID, crc32.ChecksumIEEE(payload))
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentConfirmed, error) {
	var event paypalEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	switch strings.TrimSpace(event.EventType) {
	case "PAYMENT.CAPTURE.COMPLETED", "CHECKOUT.ORDER.COMPLETED":
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	var resource paypalResource
	if err := json.Unmarshal(event.Resource, &resource); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	sessionID := strings.TrimSpace(resource.CustomID)
	amount := resource.Amount
	if len(resource.PurchaseUnits) > 0 {
		unit := resource.PurchaseUnits[0]
		sessionID = adapters.FirstNonEmpty(sessionID, unit.CustomID)
		if amount == nil {
			amount = unit.Amount
		}
	}
	if sessionID == "" {
		return nil, paymentdomain.ErrMissingSessionID
	}
	if amount == nil {
		return nil, paymentdomain.ErrInvalidAmount
	}
	value, err := adapters.ParseAmount(amount.Value)
	if err != nil {
		return nil, err
	}

	return &paymentdomain.PaymentConfirmed{
		SessionID:   sessionID,
		Provider:    paymentdomain.ProviderPayPal,
		Amount:      value,
		Currency:    adapters.NormalizeCurrency(amount.CurrencyCode),
		ProviderRef: adapters.FirstNonEmpty(resource.ID, event.ID),
		EventID:     event.ID,
		EventType:   event.EventType,
		OccurredAt:  adapters.ParseTime(a.now, event.CreateTime),
		Raw:         payload,
	}, nil
}

type paypalEvent struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	CreateTime string          `json:"create_time"`
	Resource   json.RawMessage `json:"resource"`
}

type paypalResource struct {
	ID            string         `json:"id"`
	CustomID      string         `json:"custom_id"`
	Amount        *paypalAmount  `json:"amount"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

type purchaseUnit struct {
	CustomID string        `json:"custom_id"`
	Amount   *paypalAmount `json:"amount"`
}

type paypalAmount struct {
	Value        json.RawMessage `json:"value"`
	CurrencyCode string          `json:"currency_code"`
}
