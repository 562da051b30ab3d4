package invoice

import (
	"github.com/Johanhagos/mijn-api/internal/config"
	"github.com/Johanhagos/mijn-api/internal/invoice/format"
	"github.com/Johanhagos/mijn-api/internal/invoice/repository"
	"github.com/Johanhagos/mijn-api/internal/invoice/service"
	"github.com/Johanhagos/mijn-api/internal/tax"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	tax.Module,
	fx.Provide(func(cfg config.Config) (format.Template, error) {
		return format.Parse(cfg.InvoiceNumberTemplate)
	}),
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
