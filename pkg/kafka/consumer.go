// Package kafka carries document events between the services over
// segmentio/kafka-go, with an in-process Loopback for single-binary use.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/config"
)

// MessageHandler is a callback invoked for each Kafka message. Headers carry
// the event type so handlers can skip payloads they do not care about.
type MessageHandler func(ctx context.Context, msg Message) error

// Message is the part of a Kafka record handlers see.
type Message struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// reader is the slice of *kafka.Reader the consume loop needs.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds one topic, as one member of a consumer group, into a
// MessageHandler.
type Consumer struct {
	reader  reader
	logger  *slog.Logger
	handler MessageHandler
	// backoff bounds the pause after consecutive fetch failures.
	minBackoff, maxBackoff time.Duration
}

// NewConsumer joins group on topic. A group that has never committed starts
// from the oldest retained message so no event is skipped.
func NewConsumer(cfg config.KafkaConfig, topic, group string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     group,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(r, slog.Default().With("component", "kafka-consumer", "topic", topic, "group", group), handler)
}

func newConsumer(r reader, logger *slog.Logger, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:     r,
		logger:     logger,
		handler:    handler,
		minBackoff: 100 * time.Millisecond,
		maxBackoff: 5 * time.Second,
	}
}

// Start consumes until ctx is cancelled. A message whose handler fails is
// logged and left uncommitted; it is redelivered after a rebalance or
// restart unless a later message on the same partition commits past it.
// Fetch failures back off exponentially up to maxBackoff.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	backoff := c.minBackoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}
		backoff = c.minBackoff
		c.dispatch(ctx, msg)
	}
}

// dispatch hands msg to the handler and commits it on success.
func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) {
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
	log.Debug("message received", "key", string(msg.Key), "value_size", len(msg.Value))

	if err := c.handler(ctx, toMessage(msg)); err != nil {
		log.Error("failed to process message", "error", err)
		return
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.Error("failed to commit message", "error", err)
	}
}

func toMessage(msg kafka.Message) Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Message{Key: msg.Key, Value: msg.Value, Headers: headers}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
