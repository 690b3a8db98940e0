package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/MrWong99/medscribe/internal/observe"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a [KafkaPublisher].
type KafkaConfig struct {
	Brokers []string
	Topic   string

	// ClientID identifies this producer to the brokers. Default: "medscribe".
	ClientID string
}

// KafkaOption is a functional option for [NewKafka].
type KafkaOption func(*KafkaPublisher)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) KafkaOption {
	return func(p *KafkaPublisher) {
		p.metrics = m
	}
}

// KafkaPublisher writes events as JSON messages to one Kafka topic. Writes
// are asynchronous: Publish only fails when the event cannot be encoded or
// the writer is closed, and delivery failures are logged and counted.
type KafkaPublisher struct {
	w        messageWriter
	topic    string
	clientID string
	metrics  *observe.Metrics
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafka creates a publisher for cfg.Topic on cfg.Brokers. No connection
// is made until the first event is written.
func NewKafka(cfg KafkaConfig, opts ...KafkaOption) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("events: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("events: topic must not be empty")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "medscribe"
	}

	p := &KafkaPublisher{topic: cfg.Topic, clientID: cfg.ClientID}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}

	dialer := &kafka.Dialer{
		ClientID:  cfg.ClientID,
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion:   p.completed,
		Transport: &kafka.Transport{
			Dial:     dialer.DialFunc,
			ClientID: cfg.ClientID,
		},
	}

	slog.Info("kafka event publisher initialised", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return p, nil
}

// Publish encodes ev and hands it to the writer. The event type is used as
// the message key so that events of one type stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", ev.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Type),
		Value: payload,
		Time:  ev.Time,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(ev.Type)},
			{Key: "producer", Value: []byte(p.clientID)},
		},
	}
	slog.Debug("publishing event", "topic", p.topic, "type", ev.Type)
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.metrics.RecordEventPublished(ctx, string(ev.Type), err)
		return fmt.Errorf("events: publish %s: %w", ev.Type, err)
	}
	return nil
}

// completed is the writer's delivery callback.
func (p *KafkaPublisher) completed(msgs []kafka.Message, err error) {
	ctx := context.Background()
	for _, m := range msgs {
		p.metrics.RecordEventPublished(ctx, string(m.Key), err)
	}
	if err != nil {
		slog.Warn("kafka event delivery failed", "topic", p.topic, "messages", len(msgs), "err", err)
	}
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	if err := p.w.Close(); err != nil {
		return fmt.Errorf("events: close: %w", err)
	}
	return nil
}
