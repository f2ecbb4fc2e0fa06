// Package kafka publishes merge events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arloliu/atmogrid/errs"
	"github.com/arloliu/atmogrid/merge"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Config selects the brokers and topic of a Publisher.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration // per publish; 0 means 10s
}

// messageWriter is the subset of *kafkago.Writer a Publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher implements merge.Notifier by writing one JSON message per event,
// keyed by dataset so events of a dataset stay ordered within a partition.
type Publisher struct {
	writer  messageWriter
	timeout time.Duration
	logger  *zap.Logger
}

var _ merge.Notifier = (*Publisher)(nil)

// NewPublisher creates a producer for cfg.Topic.
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("%w: kafka publisher needs brokers and a topic", errs.ErrInvalidConfig)
	}

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}

	return newPublisher(w, cfg.WriteTimeout, logger), nil
}

func newPublisher(w messageWriter, timeout time.Duration, logger *zap.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Publisher{writer: w, timeout: timeout, logger: logger}
}

// Notify publishes event.
func (p *Publisher) Notify(ctx context.Context, event merge.Event) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event for %q: %w", event.Tier, event.Dataset, err)
	}
	p.logger.Debug("Published merge event",
		zap.String("dataset", event.Dataset),
		zap.Stringer("tier", event.Tier))

	return nil
}

// Close flushes pending messages and closes the producer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func serializeToMessage(event merge.Event) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize merge event: %w", err)
	}

	return kafkago.Message{
		Key:   []byte(event.Dataset),
		Value: data,
		Time:  event.At,
		Headers: []kafkago.Header{
			{Key: "tier", Value: []byte(event.Tier.String())},
			{Key: "end", Value: []byte(event.End.UTC().Format(time.RFC3339))},
		},
	}, nil
}
