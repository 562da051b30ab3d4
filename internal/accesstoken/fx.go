package accesstoken

import (
	"github.com/Johanhagos/mijn-api/internal/accesstoken/service"
	"go.uber.org/fx"
)

var Module = fx.Module("accesstoken",
	fx.Provide(service.New),
)
