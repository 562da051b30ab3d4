package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrNoKeyChannel is returned when nothing can carry a plaintext API key to
// its merchant. The provisioning job keeps the key sealed and retries.
var ErrNoKeyChannel = errors.New("api_key_delivery_unavailable")

// logPublisher is used when no brokers are configured.
type logPublisher struct {
	log        *zap.Logger
	revealKeys bool
}

// NewLogPublisher writes notifications to the log. With revealKeys the
// plaintext of a new API key is logged, which is the only delivery channel a
// broker-less development setup has. Without it key delivery fails.
func NewLogPublisher(log *zap.Logger, revealKeys bool) Publisher {
	return &logPublisher{log: log.Named("notify.log"), revealKeys: revealKeys}
}

func (p *logPublisher) SessionPaid(_ context.Context, event SessionPaid) error {
	p.log.Info("session paid",
		zap.String("session_id", event.SessionID),
		zap.String("merchant_id", event.MerchantID),
		zap.String("payment_provider", event.PaymentProvider),
		zap.String("invoice_number", event.InvoiceNumber),
	)
	return nil
}

func (p *logPublisher) APIKeyIssued(_ context.Context, event APIKeyIssued) error {
	if !p.revealKeys {
		return ErrNoKeyChannel
	}
	p.log.Warn("api key issued (development delivery)",
		zap.String("merchant_id", event.MerchantID),
		zap.String("key_id", event.KeyID),
		zap.String("api_key", event.APIKey),
	)
	return nil
}
