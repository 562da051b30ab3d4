package tax

import (
	"github.com/Johanhagos/mijn-api/internal/tax/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tax.service",
	fx.Provide(service.NewEngine),
	fx.Provide(service.NewResolver),
)
