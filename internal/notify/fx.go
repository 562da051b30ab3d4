package notify

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/Johanhagos/mijn-api/internal/clock"
	"github.com/Johanhagos/mijn-api/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notify",
	fx.Provide(providePublisher),
)

func providePublisher(lc fx.Lifecycle, cfg config.Config, clk clock.Clock, log *zap.Logger) (Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		if cfg.IsProduction() {
			log.Error("KAFKA_BROKERS not set; new merchant api keys stay sealed on their provisioning job until a broker is configured")
		} else {
			log.Info("kafka brokers not configured, notifications are logged only")
		}
		return NewLogPublisher(log, !cfg.IsProduction()), nil
	}

	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, NewSaramaConfig(cfg.Kafka.ClientID))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return producer.Close()
		},
	})

	log.Info("kafka publisher ready", zap.Strings("brokers", cfg.Kafka.Brokers))
	return NewKafkaPublisher(producer, cfg.Kafka.TopicPrefix, clk, log), nil
}
