package messaging

import "context"

// Message is an already-encoded event travelling through a broker.
type Message struct {
	ID        string
	Key       string
	EventType string
	Payload   []byte
}

// Handler processes a single delivered message.
type Handler func(ctx context.Context, msg Message) error

// Publisher defines an interface for publishing events to a message broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Close() error
}

// Subscriber defines an interface for subscribing to a message topic.
// Consume blocks until ctx is cancelled.
type Subscriber interface {
	Consume(ctx context.Context, topic string, groupID string, handler Handler) error
	Close() error
}

const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)
