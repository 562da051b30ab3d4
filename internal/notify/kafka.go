package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/Johanhagos/mijn-api/internal/clock"
	"go.uber.org/zap"
)

type kafkaPublisher struct {
	producer sarama.SyncProducer
	prefix   string
	clock    clock.Clock
	log      *zap.Logger
}

// NewKafkaPublisher publishes JSON events through producer. Topic names are
// prefixed with prefix when set.
func NewKafkaPublisher(producer sarama.SyncProducer, prefix string, clk clock.Clock, log *zap.Logger) Publisher {
	return &kafkaPublisher{
		producer: producer,
		prefix:   strings.TrimSpace(prefix),
		clock:    clk,
		log:      log.Named("notify.kafka"),
	}
}

// NewSaramaConfig returns the producer settings used for notifications.
func NewSaramaConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Version = sarama.V3_3_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Timeout = 5 * time.Second
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	return cfg
}

func (p *kafkaPublisher) SessionPaid(ctx context.Context, event SessionPaid) error {
	return p.publish(ctx, TopicSessionPaid, event.SessionID, event)
}

func (p *kafkaPublisher) APIKeyIssued(ctx context.Context, event APIKeyIssued) error {
	return p.publish(ctx, TopicAPIKeyIssued, event.MerchantID, event)
}

func (p *kafkaPublisher) topic(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + "." + name
}

func (p *kafkaPublisher) publish(ctx context.Context, topic, key string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic(topic),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerEventType), Value: []byte(topic)},
			{Key: []byte(headerSchemaVersion), Value: []byte(schemaVersion)},
		},
		Timestamp: p.clock.Now(),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	p.log.Debug("event published",
		zap.String("topic", msg.Topic),
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}
