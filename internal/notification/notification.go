// Package notification turns domain events into emails for buyers, the shop
// operator and trading partners.
package notification

import (
	"context"

	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/shopspring/decimal"
)

// OrderNotice describes a committed order.
type OrderNotice struct {
	OrderID        int64
	Buyer          entity.User
	Lines          []entity.OrderLine
	Total          decimal.Decimal
	ShipmentMethod string
}

// TradeNotice describes a trade request between a listing owner and a requester.
type TradeNotice struct {
	RequestID       int64
	TradeBookTitle  string
	OfferedBookName string
	Location        string
	Owner           entity.User
	Requester       entity.User
}

// Dispatcher delivers notifications. Implementations must be safe for concurrent use.
type Dispatcher interface {
	NotifyBuyer(ctx context.Context, n OrderNotice) error
	NotifyOperator(ctx context.Context, n OrderNotice) error
	NotifyTradeOwner(ctx context.Context, n TradeNotice) error
	NotifyTradeRequester(ctx context.Context, n TradeNotice, status entity.TradeStatus) error
}

// Email is a plain-text message ready to send.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends a single email.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}
