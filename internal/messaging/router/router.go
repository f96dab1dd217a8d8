// Package router carries messages over Watermill, either in process through
// a Go channel or over Kafka through Sarama, and delivers them with a
// message.Router that recovers panics, retries with backoff and moves
// poisoned messages aside.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/egannguyen/go-bookstore/internal/messaging"
)

// MetadataKey is the metadata entry holding the partition key.
const MetadataKey = "key"

type Config struct {
	CloseTimeout time.Duration

	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	// PoisonSuffix is appended to a topic to name its poison queue.
	// Empty disables the poison queue.
	PoisonSuffix string
}

func DefaultConfig() Config {
	return Config{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      5,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     time.Minute,
		RetryMultiplier:      2.0,
		PoisonSuffix:         ".poison",
	}
}

// Broker implements messaging.Publisher and messaging.Subscriber on Watermill.
type Broker struct {
	publisher     message.Publisher
	newSubscriber func(groupID string) (message.Subscriber, error)
	shared        message.Subscriber
	logger        watermill.LoggerAdapter
	cfg           Config
}

// NewGoChannel returns an in-process broker. Messages are kept so that
// consumers started after a publish still receive them.
func NewGoChannel(cfg Config, logger watermill.LoggerAdapter) *Broker {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
		Persistent:          true,
	}, logger)
	return &Broker{
		publisher:     ch,
		shared:        ch,
		newSubscriber: func(string) (message.Subscriber, error) { return ch, nil },
		logger:        logger,
		cfg:           cfg,
	}
}

// NewKafka returns a broker backed by watermill-kafka. Each Consume call
// joins its own consumer group, starting from the oldest offset.
func NewKafka(brokers []string, cfg Config, logger watermill.LoggerAdapter) (*Broker, error) {
	marshaler := kafka.NewWithPartitioningMarshaler(func(_ string, msg *message.Message) (string, error) {
		return msg.Metadata.Get(MetadataKey), nil
	})

	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:               brokers,
		Marshaler:             marshaler,
		OverwriteSaramaConfig: kafka.DefaultSaramaSyncPublisherConfig(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	newSubscriber := func(groupID string) (message.Subscriber, error) {
		saramaCfg := kafka.DefaultSaramaSubscriberConfig()
		saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
		return kafka.NewSubscriber(kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           marshaler,
			OverwriteSaramaConfig: saramaCfg,
			ConsumerGroup:         groupID,
		}, logger)
	}

	return &Broker{publisher: pub, newSubscriber: newSubscriber, logger: logger, cfg: cfg}, nil
}

func (b *Broker) Publish(ctx context.Context, topic string, msg messaging.Message) error {
	id := msg.ID
	if id == "" {
		id = watermill.NewUUID()
	}
	wm := message.NewMessage(id, msg.Payload)
	wm.Metadata.Set(MetadataKey, msg.Key)
	wm.Metadata.Set(messaging.HeaderEventID, id)
	wm.Metadata.Set(messaging.HeaderEventType, msg.EventType)
	wm.SetContext(ctx)

	if err := b.publisher.Publish(topic, wm); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Consume runs a router with a single handler for topic until ctx is cancelled.
func (b *Broker) Consume(ctx context.Context, topic string, groupID string, handler messaging.Handler) error {
	sub, err := b.newSubscriber(groupID)
	if err != nil {
		return fmt.Errorf("failed to create subscriber for %s: %w", topic, err)
	}
	if sub != b.shared {
		defer sub.Close()
	}

	r, err := b.newRouter(topic)
	if err != nil {
		return err
	}
	r.AddConsumerHandler(groupID+"."+topic, topic, sub, func(m *message.Message) error {
		return handler(m.Context(), messaging.Message{
			ID:        m.Metadata.Get(messaging.HeaderEventID),
			Key:       m.Metadata.Get(MetadataKey),
			EventType: m.Metadata.Get(messaging.HeaderEventType),
			Payload:   m.Payload,
		})
	})

	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("router for %s stopped: %w", topic, err)
	}
	return nil
}

func (b *Broker) newRouter(topic string) (*message.Router, error) {
	r, err := message.NewRouter(message.RouterConfig{CloseTimeout: b.cfg.CloseTimeout}, b.logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	r.AddMiddleware(middleware.Recoverer)
	if b.cfg.PoisonSuffix != "" {
		poison, err := middleware.PoisonQueue(b.publisher, topic+b.cfg.PoisonSuffix)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		r.AddMiddleware(poison)
	}
	r.AddMiddleware(middleware.Retry{
		MaxRetries:      b.cfg.RetryMaxRetries,
		InitialInterval: b.cfg.RetryInitialInterval,
		MaxInterval:     b.cfg.RetryMaxInterval,
		Multiplier:      b.cfg.RetryMultiplier,
		Logger:          b.logger,
	}.Middleware)
	return r, nil
}

func (b *Broker) Close() error {
	err := b.publisher.Close()
	if b.shared != nil && any(b.shared) != any(b.publisher) {
		err = errors.Join(err, b.shared.Close())
	}
	return err
}
