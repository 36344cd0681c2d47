// Package kafka implements an eventstream publisher on top of segmentio's
// kafka-go writer. Operators use it to fan persisted exchanges out to other
// systems.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/eventstream"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "engram.exchanges"

// Publisher publishes exchange events to a Kafka topic.
type Publisher struct {
	writer *kafkago.Writer
	logger *zap.Logger
}

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of bootstrap broker addresses.
	Brokers []string

	// Topic is the destination topic. Defaults to DefaultTopic if empty.
	Topic string
}

// NewPublisher creates a Kafka-backed exchange event publisher.
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.LeastBytes{},
		AllowAutoTopicCreation: true,
	}

	logger.Info("kafka exchange publisher initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", topic),
	)

	return &Publisher{
		writer: writer,
		logger: logger,
	}, nil
}

// PublishExchange writes the event to the topic, keyed by identity handle so
// one user's exchanges stay ordered within a partition.
func (p *Publisher) PublishExchange(ctx context.Context, event *eventstream.ExchangePersistedEvent) error {
	if event == nil {
		return eventstream.ErrNilExchangeEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling exchange event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.Exchange.IdentityHandle),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("writing exchange event: %w", err)
	}

	p.logger.Debug("published exchange event",
		zap.String("event_id", event.EventID),
		zap.String("identity_handle", event.Exchange.IdentityHandle),
	)

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Ensure Publisher implements eventstream.Publisher
var _ eventstream.Publisher = (*Publisher)(nil)
