// Package chain handles direct blockchain confirmation feeds.
package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Johanhagos/mijn-api/internal/payment/adapters"
	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
)

const (
	signatureHeader = "X-Chain-Signature"
	signaturePrefix = "sha256="
)

// nativeCurrency is used when the feed omits the currency.
var nativeCurrency = map[string]string{
	"ethereum": "ETH",
	"bitcoin":  "BTC",
	"polygon":  "MATIC",
	"solana":   "SOL",
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return paymentdomain.ProviderChain
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	minConfirmations := cfg.MinConfirmations
	if minConfirmations <= 0 {
		minConfirmations = 1
	}
	return &Adapter{
		webhookSecret:    strings.TrimSpace(cfg.Secret),
		minConfirmations: minConfirmations,
		now:              cfg.Now,
	}, nil
}

type Adapter struct {
	webhookSecret    string
	minConfirmations int
	now              func() time.Time
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return paymentdomain.ErrInvalidConfig
	}
	header := strings.TrimSpace(headers.Get(signatureHeader))
	if !strings.HasPrefix(header, signaturePrefix) {
		return paymentdomain.ErrInvalidSignature
	}
	return adapters.VerifyHexSignature(a.webhookSecret, payload, strings.TrimPrefix(header, signaturePrefix))
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentConfirmed, error) {
	var event chainEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.Event) != "payment.confirmed" {
		return nil, paymentdomain.ErrEventIgnored
	}
	// Confirmations absent from the payload count as one.
	confirmations := 1
	if event.Confirmations != nil {
		confirmations = *event.Confirmations
	}
	if confirmations < a.minConfirmations {
		return nil, paymentdomain.ErrEventIgnored
	}

	sessionID := strings.TrimSpace(event.SessionID)
	if sessionID == "" {
		return nil, paymentdomain.ErrMissingSessionID
	}
	txID := strings.TrimSpace(event.BlockchainTxID)
	if txID == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}
	amount, err := adapters.ParseAmount(event.Amount)
	if err != nil {
		return nil, err
	}
	currency := adapters.FirstNonEmpty(event.Currency, nativeCurrency[strings.ToLower(strings.TrimSpace(event.Network))])

	return &paymentdomain.PaymentConfirmed{
		SessionID:   sessionID,
		Provider:    paymentdomain.ProviderChain,
		Amount:      amount,
		Currency:    adapters.NormalizeCurrency(currency),
		ProviderRef: txID,
		EventID:     txID,
		EventType:   event.Event,
		OccurredAt:  adapters.Timestamp(a.now),
		Raw:         payload,
	}, nil
}

type chainEvent struct {
	Event          string          `json:"event"`
	SessionID      string          `json:"session_id"`
	Amount         json.RawMessage `json:"amount"`
	Currency       string          `json:"currency"`
	BlockchainTxID string          `json:"blockchain_tx_id"`
	Network        string          `json:"network"`
	Confirmations  *int            `json:"confirmations"`
}
