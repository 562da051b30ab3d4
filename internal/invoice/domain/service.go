package domain

import (
	"context"
	"errors"

	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
	sessiondomain "github.com/Johanhagos/mijn-api/internal/session/domain"
)

type Repository interface {
	// Insert returns ErrDuplicateInvoice when the session already has one.
	Insert(ctx context.Context, invoice *Invoice) error
	FindBySessionID(ctx context.Context, sessionID string) (*Invoice, error)
}

// Materializer turns a paid session into its invoice. created is false when
// another caller already materialized it; that is not an error.
type Materializer interface {
	Materialize(ctx context.Context, session *sessiondomain.Session, confirmed paymentdomain.PaymentConfirmed) (*Invoice, bool, error)
}

var (
	ErrDuplicateInvoice = errors.New("duplicate_invoice")
	ErrNotFound         = errors.New("invoice_not_found")
	ErrSessionNotPaid   = errors.New("session_not_paid")
)
