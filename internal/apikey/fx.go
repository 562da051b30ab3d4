package apikey

import (
	"github.com/Johanhagos/mijn-api/internal/apikey/repository"
	"github.com/Johanhagos/mijn-api/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
