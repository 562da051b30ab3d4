package session

import (
	"context"

	"github.com/Johanhagos/mijn-api/internal/config"
	"github.com/Johanhagos/mijn-api/internal/session/boltstore"
	"github.com/Johanhagos/mijn-api/internal/session/domain"
	"github.com/Johanhagos/mijn-api/internal/session/repository"
	"github.com/Johanhagos/mijn-api/internal/session/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("session.service",
	fx.Provide(provideStore),
	fx.Provide(service.NewService),
)

func provideStore(lc fx.Lifecycle, cfg config.Config, conn *gorm.DB, log *zap.Logger) (domain.Store, error) {
	if cfg.SessionStore != config.SessionStoreBolt {
		return repository.Provide(conn), nil
	}

	store, err := boltstore.Open(cfg.BoltPath)
	if err != nil {
		return nil, err
	}
	log.Info("session store using bolt", zap.String("path", cfg.BoltPath))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}
