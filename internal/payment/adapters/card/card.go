// Package card verifies and normalizes card processor webhooks. The wire
// format follows the Stripe event envelope.
package card

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Johanhagos/mijn-api/internal/payment/adapters"
	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
)

const (
	signatureHeader  = "Stripe-Signature"
	defaultTolerance = 5 * time.Minute
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return paymentdomain.ProviderCard
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Adapter{
		webhookSecret: strings.TrimSpace(cfg.Secret),
		tolerance:     tolerance,
		now:           now,
	}, nil
}

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
	now           func() time.Time
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return paymentdomain.ErrInvalidConfig
	}
	sigHeader := strings.TrimSpace(headers.Get(signatureHeader))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	signedAt, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	age := a.now().Sub(time.Unix(signedAt, 0))
	if age > a.tolerance || age < -a.tolerance {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := []byte(fmt.Sprintf("%s.%s", timestamp, string(payload)))
	for _, signature := range signatures {
		if adapters.VerifyHexSignature(a.webhookSecret, signedPayload, signature) == nil {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentConfirmed, error) {
	var event cardEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	var parse func(cardEvent, []byte) (*paymentdomain.PaymentConfirmed, error)
	switch strings.TrimSpace(event.Type) {
	case "payment_intent.succeeded":
		parse = a.parsePaymentIntent
	case "charge.succeeded":
		parse = a.parseCharge
	case "checkout.session.completed":
		parse = a.parseCheckoutSession
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}
	return parse(event, payload)
}

type cardEvent struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Created int64         `json:"created"`
	Data    cardEventData `json:"data"`
}

type cardEventData struct {
	Object json.RawMessage `json:"object"`
}

type paymentIntent struct {
	ID             string         `json:"id"`
	Amount         int64          `json:"amount"`
	AmountReceived int64          `json:"amount_received"`
	Currency       string         `json:"currency"`
	Created        int64          `json:"created"`
	Metadata       map[string]any `json:"metadata"`
}

type charge struct {
	ID            string         `json:"id"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Created       int64          `json:"created"`
	PaymentIntent string         `json:"payment_intent"`
	Metadata      map[string]any `json:"metadata"`
}

type checkoutSession struct {
	ID                string         `json:"id"`
	AmountTotal       int64          `json:"amount_total"`
	Currency          string         `json:"currency"`
	Created           int64          `json:"created"`
	PaymentStatus     string         `json:"payment_status"`
	PaymentIntent     string         `json:"payment_intent"`
	ClientReferenceID string         `json:"client_reference_id"`
	Metadata          map[string]any `json:"metadata"`
}

func (a *Adapter) parsePaymentIntent(event cardEvent, payload []byte) (*paymentdomain.PaymentConfirmed, error) {
	var intent paymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	sessionID := adapters.ReadMetadataValue(intent.Metadata, "session_id")
	if sessionID == "" {
		return nil, paymentdomain.ErrMissingSessionID
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}
	return a.confirmed(event, payload, sessionID, intent.ID, amount, intent.Currency, intent.Created)
}

func (a *Adapter) parseCharge(event cardEvent, payload []byte) (*paymentdomain.PaymentConfirmed, error) {
	var item charge
	if err := json.Unmarshal(event.Data.Object, &item); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	sessionID := adapters.ReadMetadataValue(item.Metadata, "session_id")
	if sessionID == "" {
		return nil, paymentdomain.ErrMissingSessionID
	}
	return a.confirmed(event, payload, sessionID, item.ID, item.Amount, item.Currency, item.Created)
}

// parseCheckoutSession only confirms sessions that are actually paid; async
// payment methods complete the checkout before the funds arrive.
func (a *Adapter) parseCheckoutSession(event cardEvent, payload []byte) (*paymentdomain.PaymentConfirmed, error) {
	var session checkoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if !strings.EqualFold(strings.TrimSpace(session.PaymentStatus), "paid") {
		return nil, paymentdomain.ErrEventIgnored
	}
	sessionID := adapters.FirstNonEmpty(
		adapters.ReadMetadataValue(session.Metadata, "session_id"),
		session.ClientReferenceID,
	)
	if sessionID == "" {
		return nil, paymentdomain.ErrMissingSessionID
	}
	ref := adapters.FirstNonEmpty(session.PaymentIntent, session.ID)
	return a.confirmed(event, payload, sessionID, ref, session.AmountTotal, session.Currency, session.Created)
}

func (a *Adapter) confirmed(event cardEvent, payload []byte, sessionID, ref string, amount int64, currency string, created int64) (*paymentdomain.PaymentConfirmed, error) {
	if amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}
	return &paymentdomain.PaymentConfirmed{
		SessionID:   sessionID,
		Provider:    paymentdomain.ProviderCard,
		Amount:      adapters.FromMinorUnits(amount, currency),
		Currency:    adapters.NormalizeCurrency(currency),
		ProviderRef: ref,
		EventID:     event.ID,
		EventType:   event.Type,
		OccurredAt:  adapters.Timestamp(a.now, created, event.Created),
		Raw:         payload,
	}, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	var timestamp string
	signatures := []string{}
	for _, part := range strings.Split(header, ",") {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}
