package provisioning

import (
	"context"
	"crypto/rand"

	"github.com/Johanhagos/mijn-api/internal/config"
	"github.com/Johanhagos/mijn-api/internal/provisioning/keybox"
	"github.com/Johanhagos/mijn-api/internal/provisioning/repository"
	"github.com/Johanhagos/mijn-api/internal/provisioning/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("provisioning",
	fx.Provide(repository.Provide),
	fx.Provide(newKeyBox),
	fx.Provide(service.New),
	fx.Provide(NewConsumer),
	fx.Invoke(runConsumer),
)

func newKeyBox(cfg config.Config, log *zap.Logger) (*keybox.Box, error) {
	secret := []byte(cfg.Provisioning.KeySealSecret)
	if len(secret) == 0 {
		if cfg.IsProduction() {
			return nil, keybox.ErrMissingSecret
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		log.Warn("API_KEY_SEAL_SECRET not set, using an ephemeral key; undelivered api keys are unreadable after a restart")
	}
	return keybox.New(secret)
}

func runConsumer(lc fx.Lifecycle, consumer *Consumer) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			consumer.Start()
			return nil
		},
		OnStop: consumer.Stop,
	})
}
