// Package audit implements service.KeyLifecycleRegistry sinks.
package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/ckms/internal/config"
	"github.com/turtacn/ckms/internal/domain/service"
	"github.com/turtacn/ckms/pkg/logger"
)

// KafkaProducer is a Kafka-backed implementation of service.KeyLifecycleRegistry.
// Every mint, wrap, sign, verify, encrypt, decrypt, and expiry event is
// published to a single topic for downstream consumption by audit and
// alerting pipelines.
type KafkaProducer struct {
	writer *kafka.Writer
	logger logger.Logger
}

// NewKafkaProducer creates a new KafkaProducer.
func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) (service.KeyLifecycleRegistry, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaProducer{
		writer: writer,
		logger: log.WithFields(logger.Fields{"component": "kafka_producer"}),
	}, nil
}

// LogEvent publishes event to the configured topic, keyed on the scope so a
// single partition carries every event for a given application/reference
// pair in generation order.
func (p *KafkaProducer) LogEvent(ctx context.Context, event service.LifecycleEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal lifecycle event", err)
		return err
	}

	key := event.ApplicationID + "\x00" + event.ReferenceID
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to publish lifecycle event", err, logger.Fields{
			"event_type": string(event.EventType),
			"alias":      event.Alias,
		})
	}
	return err
}

// Close closes the underlying Kafka writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

var _ service.KeyLifecycleRegistry = (*KafkaProducer)(nil)
