// Package stream forwards security events to Kafka for downstream SIEM tooling.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/config"
	"github.com/riskianand4/internet-stock-tracker-84/internal/logger"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each security event as one JSON message keyed by
// the offending address
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	log    *logger.Logger
}

// NewKafkaPublisher creates a publisher for cfg.Topic
func NewKafkaPublisher(cfg config.KafkaConfig, log *logger.Logger) *KafkaPublisher {
	log = log.WithComponent("kafka_publisher")

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error().Err(err).Int("message_count", len(messages)).Msg("failed to write kafka messages")
			}
		},
	}

	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("kafka publisher initialized")

	return &KafkaPublisher{writer: writer, topic: cfg.Topic, log: log}
}

// Name identifies the publisher in logs
func (p *KafkaPublisher) Name() string {
	return "kafka"
}

// Publish writes ev to the topic
func (p *KafkaPublisher) Publish(ctx context.Context, ev *model.SecurityEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode security event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.IPAddress),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "severity", Value: []byte(ev.Severity)},
		},
		Time: ev.CreatedAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	p.log.Debug().Str("event_id", ev.ID).Str("topic", p.topic).Msg("security event forwarded")
	return nil
}

// Close flushes pending messages and closes the writer
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		p.log.Error().Err(err).Msg("failed to close kafka publisher")
		return err
	}
	p.log.Info().Msg("kafka publisher closed")
	return nil
}
