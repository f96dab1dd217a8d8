package entity

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Topics events are published to.
const (
	TopicOrdersPlaced    = "orders.placed"
	TopicTradesRequested = "trades.requested"
	TopicTradesResolved  = "trades.resolved"
)

// Event represents a domain event.
type Event interface {
	EventType() string
}

// OutboxRecord is an event persisted alongside the change that produced it,
// waiting to be relayed to the broker.
type OutboxRecord struct {
	ID        int64      `json:"id"`
	EventID   string     `json:"event_id"`
	Topic     string     `json:"topic"`
	Key       string     `json:"key"`
	EventType string     `json:"event_type"`
	Payload   []byte     `json:"payload"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// OrderPlaced is emitted once a checkout has committed.
type OrderPlaced struct {
	OrderID        int64           `json:"order_id"`
	BuyerID        int64           `json:"user_id"`
	Lines          []OrderLine     `json:"order_info"`
	Total          decimal.Decimal `json:"total_price"`
	ShipmentMethod string          `json:"shipment_method"`
	PlacedAt       time.Time       `json:"placed_at"`
}

func (e OrderPlaced) EventType() string { return "OrderPlaced" }

// Order rebuilds the order snapshot carried by the event.
func (e OrderPlaced) Order() *Order {
	return &Order{
		ID:             e.OrderID,
		BuyerID:        e.BuyerID,
		Lines:          e.Lines,
		Total:          e.Total,
		Status:         OrderPending,
		ShipmentMethod: e.ShipmentMethod,
		CreatedAt:      e.PlacedAt,
	}
}

// NewOrderPlaced builds the event for a freshly placed order.
func NewOrderPlaced(o *Order) OrderPlaced {
	return OrderPlaced{
		OrderID:        o.ID,
		BuyerID:        o.BuyerID,
		Lines:          o.Lines,
		Total:          o.Total,
		ShipmentMethod: o.ShipmentMethod,
		PlacedAt:       o.CreatedAt,
	}
}

// TradeRequested is emitted when a user asks to trade for a listed book.
type TradeRequested struct {
	RequestID       int64     `json:"request_id"`
	TradeBookID     int64     `json:"trade_book_id"`
	TradeBookTitle  string    `json:"trade_book_title"`
	OwnerID         int64     `json:"owner_id"`
	RequesterID     int64     `json:"requester_id"`
	OfferedBookName string    `json:"book_name"`
	Location        string    `json:"location"`
	RequestedAt     time.Time `json:"requested_at"`
}

func (e TradeRequested) EventType() string { return "TradeRequested" }

// TradeResolution carries the outcome of a trade request.
type TradeResolution struct {
	RequestID       int64     `json:"request_id"`
	TradeBookTitle  string    `json:"trade_book_title"`
	OwnerID         int64     `json:"owner_id"`
	RequesterID     int64     `json:"requester_id"`
	OfferedBookName string    `json:"book_name"`
	ResolvedAt      time.Time `json:"resolved_at"`
}

// TradeRequestAccepted is emitted when the owner accepts a request.
type TradeRequestAccepted struct {
	TradeResolution
}

func (e TradeRequestAccepted) EventType() string { return "TradeRequestAccepted" }

// TradeRequestDeclined is emitted when the owner declines a request.
type TradeRequestDeclined struct {
	TradeResolution
}

func (e TradeRequestDeclined) EventType() string { return "TradeRequestDeclined" }

// DecodeEvent turns a stored or received payload back into its typed event.
func DecodeEvent(eventType string, payload []byte) (Event, error) {
	var (
		e   Event
		err error
	)
	switch eventType {
	case "OrderPlaced":
		var v OrderPlaced
		err = json.Unmarshal(payload, &v)
		e = v
	case "TradeRequested":
		var v TradeRequested
		err = json.Unmarshal(payload, &v)
		e = v
	case "TradeRequestAccepted":
		var v TradeRequestAccepted
		err = json.Unmarshal(payload, &v)
		e = v
	case "TradeRequestDeclined":
		var v TradeRequestDeclined
		err = json.Unmarshal(payload, &v)
		e = v
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", eventType, err)
	}
	return e, nil
}
