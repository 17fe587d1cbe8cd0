// Package kafka publishes draft events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/presence/pkg/eventstream"
	"github.com/papercomputeco/presence/pkg/logger"
)

// DefaultTopic receives draft events when no topic is configured.
const DefaultTopic = "presence.decisions"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures the Kafka publisher.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Publisher writes draft events keyed by draft key so that every event for a
// draft lands on the same partition in order.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a Kafka publisher.
func NewPublisher(c Config, log *slog.Logger) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(c.Brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		WriteTimeout:           c.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, c.Topic, log), nil
}

func newPublisher(w messageWriter, topic string, log *slog.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{writer: w, topic: topic, logger: log}
}

// PublishDraft serializes the event as JSON and writes it to the topic.
func (p *Publisher) PublishDraft(ctx context.Context, event *eventstream.DraftEvent) error {
	if err := eventstream.Validate(event); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling draft event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.Draft.Key),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(strconv.Itoa(event.SchemaVersion))},
		},
		Time: event.EmittedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing draft event to %s: %w", p.topic, err)
	}

	p.logger.Debug("published draft event",
		"topic", p.topic,
		"event_type", event.EventType,
		"draft_key", event.Draft.Key,
	)
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
