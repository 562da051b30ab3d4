package payment

import (
	"github.com/Johanhagos/mijn-api/internal/payment/adapters"
	"github.com/Johanhagos/mijn-api/internal/payment/adapters/card"
	"github.com/Johanhagos/mijn-api/internal/payment/adapters/chain"
	"github.com/Johanhagos/mijn-api/internal/payment/adapters/coinbase"
	"github.com/Johanhagos/mijn-api/internal/payment/adapters/hosted"
	"github.com/Johanhagos/mijn-api/internal/payment/adapters/paypal"
	"github.com/Johanhagos/mijn-api/internal/payment/repository"
	"github.com/Johanhagos/mijn-api/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			card.NewFactory(),
			paypal.NewFactory(),
			coinbase.NewFactory(),
			hosted.NewFactory(),
			chain.NewFactory(),
		)
	}),
	fx.Provide(webhook.NewService),
)
