package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/egannguyen/go-bookstore/internal/messaging"
	kafkaGo "github.com/segmentio/kafka-go"
)

// Broker publishes and consumes messages with segmentio/kafka-go.
// Writers are created lazily and reused per topic.
type Broker struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafkaGo.Writer
}

// NewBroker creates a new Kafka publisher and subscriber.
func NewBroker(brokers []string) *Broker {
	return &Broker{brokers: brokers, writers: make(map[string]*kafkaGo.Writer)}
}

func (b *Broker) writer(topic string) *kafkaGo.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.writers[topic]
	if !ok {
		w = &kafkaGo.Writer{
			Addr:                   kafkaGo.TCP(b.brokers...),
			Topic:                  topic,
			Balancer:               &kafkaGo.Hash{},
			AllowAutoTopicCreation: true,
			RequiredAcks:           kafkaGo.RequireAll,
		}
		b.writers[topic] = w
	}
	return w
}

func (b *Broker) Publish(ctx context.Context, topic string, msg messaging.Message) error {
	err := b.writer(topic).WriteMessages(ctx, kafkaGo.Message{
		Key:   []byte(msg.Key),
		Value: msg.Payload,
		Headers: []kafkaGo.Header{
			{Key: messaging.HeaderEventID, Value: []byte(msg.ID)},
			{Key: messaging.HeaderEventType, Value: []byte(msg.EventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write message to %s: %w", topic, err)
	}
	return nil
}

// Consume fetches messages and commits each one after its handler succeeds.
// Handler failures are logged and the message is skipped.
func (b *Broker) Consume(ctx context.Context, topic string, groupID string, handler messaging.Handler) error {
	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:     b.brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafkaGo.FirstOffset,
	})
	defer reader.Close()

	for {
		km, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Consumer shutting down", "topic", topic)
				return nil
			}
			slog.Error("Error reading message", "topic", topic, "err", err)
			continue
		}

		msg := messaging.Message{Key: string(km.Key), Payload: km.Value}
		for _, h := range km.Headers {
			switch h.Key {
			case messaging.HeaderEventID:
				msg.ID = string(h.Value)
			case messaging.HeaderEventType:
				msg.EventType = string(h.Value)
			}
		}

		if err := handler(ctx, msg); err != nil {
			slog.Error("Error handling message", "topic", topic, "offset", km.Offset, "err", err)
			continue
		}
		if err := reader.CommitMessages(ctx, km); err != nil && ctx.Err() == nil {
			slog.Error("Error committing message", "topic", topic, "offset", km.Offset, "err", err)
		}
	}
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for topic, w := range b.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %s: %w", topic, err))
		}
	}
	b.writers = make(map[string]*kafkaGo.Writer)
	return errors.Join(errs...)
}
