package merchant

import (
	"github.com/Johanhagos/mijn-api/internal/merchant/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("merchant.directory",
	fx.Provide(repository.NewDirectory),
)
