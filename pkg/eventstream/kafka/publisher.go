// Package kafka publishes turn events to a Kafka topic using
// github.com/segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/parlor/pkg/eventstream"
	"github.com/papercomputeco/parlor/pkg/logger"
)

// ErrNoBrokers is returned when the publisher is configured without brokers.
var ErrNoBrokers = errors.New("kafka publisher requires at least one broker")

// ErrNoTopic is returned when the publisher is configured without a topic.
var ErrNoTopic = errors.New("kafka publisher requires a topic")

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures the Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string

	// WriteTimeout bounds a single publish. Defaults to 10 seconds.
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Publisher writes TurnRecordedEvents as JSON messages keyed by session ID,
// so every turn of a session lands on the same partition.
type Publisher struct {
	writer  messageWriter
	timeout time.Duration
	logger  *slog.Logger
}

// NewPublisher creates a Kafka publisher.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if c.Topic == "" {
		return nil, ErrNoTopic
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(c.Brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return newPublisher(w, c), nil
}

func newPublisher(w messageWriter, c Config) *Publisher {
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	return &Publisher{writer: w, timeout: c.WriteTimeout, logger: c.Logger}
}

// PublishTurn encodes and writes one event.
func (p *Publisher) PublishTurn(ctx context.Context, event *eventstream.TurnRecordedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling turn event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafkago.Message{
		Key:   []byte(event.Session.ID),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: fmt.Appendf(nil, "%d", event.SchemaVersion)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing turn event: %w", err)
	}

	p.logger.Debug("turn event published",
		"event_id", event.EventID,
		"session_id", event.Session.ID,
		"outcome", event.Turn.Outcome,
	)
	return nil
}

// Close flushes pending writes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
