package service

import (
	"context"
	"strings"
	"time"

	"github.com/Johanhagos/mijn-api/internal/config"
	taxdomain "github.com/Johanhagos/mijn-api/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ResolverParams struct {
	fx.In

	Log       *zap.Logger
	Cfg       config.Config
	Engine    *Engine
	Validator taxdomain.TaxIDValidator `optional:"true"`
}

type resolver struct {
	log       *zap.Logger
	engine    taxdomain.Determiner
	validator taxdomain.TaxIDValidator
	timeout   time.Duration
}

func NewResolver(p ResolverParams) taxdomain.Resolver {
	timeout := p.Cfg.Tax.RegistryTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &resolver{
		log:       p.Log.Named("tax.resolver"),
		engine:    p.Engine,
		validator: p.Validator,
		timeout:   timeout,
	}
}

// Resolve checks the buyer tax id with the registry when one is wired. A
// registry that answers "invalid" downgrades the sale to B2C. A registry that
// fails or times out is ignored and the tax id is taken at face value.
func (r *resolver) Resolve(ctx context.Context, sellerCountry, buyerCountry, buyerTaxID string) taxdomain.Result {
	taxID := strings.TrimSpace(buyerTaxID)
	if taxID != "" && r.validator != nil {
		checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
		valid, err := r.validator.Validate(checkCtx, buyerCountry, taxID)
		cancel()
		switch {
		case err != nil:
			r.log.Warn("tax id registry unavailable, accepting tax id as provided",
				zap.String("buyer_country", buyerCountry),
				zap.Error(err),
			)
		case !valid:
			r.log.Info("tax id rejected by registry, treating buyer as consumer",
				zap.String("buyer_country", buyerCountry),
			)
			taxID = ""
		}
	}
	return r.engine.Determine(sellerCountry, buyerCountry, taxID)
}
