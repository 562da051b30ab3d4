package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Status(ctx context.Context, id string) (*StatusView, error)
	// Apply loads the session, runs mutate on a copy and persists it with a
	// compare-and-swap, retrying from a fresh read on version conflicts.
	// mutate returns false when no write is needed.
	Apply(ctx context.Context, id string, mutate MutateFunc) (*Session, bool, error)
	MarkPending(ctx context.Context, id string) (*Session, error)
	MarkFailed(ctx context.Context, id string, reason string) (*Session, error)
}

// MutateFunc may be invoked several times for one Apply call and must not keep
// state across invocations.
type MutateFunc func(s *Session) (bool, error)

type CreateRequest struct {
	MerchantID   string          `json:"merchant_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Mode         string          `json:"mode"`
	BuyerCountry string          `json:"buyer_country"`
	BuyerTaxID   string          `json:"buyer_tax_id"`
}
