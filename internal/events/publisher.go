package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, clinicID string, evt Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes envelopes to a Kafka topic keyed by clinic id, so
// events for a clinic stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *logging.Logger
}

// NewKafkaPublisher builds a synchronous publisher for the given brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *logging.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newKafkaPublisher(writer, topic, logger)
}

func newKafkaPublisher(w messageWriter, topic string, logger *logging.Logger) *KafkaPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

// Publish wraps evt in an envelope and writes it.
func (p *KafkaPublisher) Publish(ctx context.Context, clinicID string, evt Event) error {
	env, err := NewEnvelope(clinicID, evt)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(env.ClinicID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(env.EventType)},
			{Key: "event-id", Value: []byte(env.EventID.String())},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish event", "event_type", env.EventType, "clinic_id", env.ClinicID, "error", err)
		return fmt.Errorf("events: publish %s: %w", env.EventType, err)
	}
	p.logger.Debug("event published", "event_type", env.EventType, "event_id", env.EventID, "topic", p.topic)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
