package repository

import (
	"context"

	"github.com/egannguyen/go-bookstore/internal/entity"
)

// UserRepository is the buyer directory.
type UserRepository interface {
	Exists(ctx context.Context, id int64) (bool, error)
	// FindByID returns an apperr NotFound error when the user does not exist.
	FindByID(ctx context.Context, id int64) (*entity.User, error)
	Update(ctx context.Context, id int64, patch Patch) error
}

// BookRepository is the inventory store for sale books.
type BookRepository interface {
	FindAll(ctx context.Context) ([]entity.SaleBook, error)
	FindLatest(ctx context.Context, limit int) ([]entity.SaleBook, error)
	// FindByID returns an apperr NotFound error when the book does not exist.
	FindByID(ctx context.Context, id int64) (*entity.SaleBook, error)
	Update(ctx context.Context, id int64, patch Patch) error
	// Seed inserts initial books if none exist.
	Seed(ctx context.Context, books []entity.SaleBook) error
}

// OrderRepository handles persistence for orders.
type OrderRepository interface {
	// PlaceOrder persists the order and its lines, decrements stock for every
	// line and records the OrderPlaced event, all or nothing. It assigns the
	// order ID and creation time. A decrement that finds too little stock
	// aborts the whole unit with an apperr Conflict error for that book.
	PlaceOrder(ctx context.Context, order *entity.Order) (*entity.OrderPlaced, error)
	FindByID(ctx context.Context, id int64) (*entity.Order, error)
	FindRecent(ctx context.Context, limit int) ([]entity.Order, error)
	// UpdateStatus changes the status only if it currently equals from and
	// reports how many rows changed.
	UpdateStatus(ctx context.Context, id int64, from, to entity.OrderStatus) (int64, error)
	Delete(ctx context.Context, id int64) error
}

// TradeRepository handles trade listings and the requests made against them.
type TradeRepository interface {
	FindTradeBook(ctx context.Context, id int64) (*entity.TradeBook, error)
	FindRequest(ctx context.Context, id int64) (*entity.TradeRequest, error)
	FindRequestsByTradeBook(ctx context.Context, tradeBookID int64) ([]entity.TradeRequest, error)
	FindRequestsByRequester(ctx context.Context, requesterID int64) ([]entity.TradeRequest, error)
	// CreateRequest inserts a pending request and records the TradeRequested
	// event. A second request by the same user for the same listing is an
	// apperr Conflict.
	CreateRequest(ctx context.Context, req *entity.TradeRequest, book *entity.TradeBook) (*entity.TradeRequested, error)
	// ResolveRequest moves a pending request to accepted or declined and
	// records the matching event. Accepting also removes the listing. A
	// request that is no longer pending is an apperr InvalidTransition.
	ResolveRequest(ctx context.Context, req *entity.TradeRequest, book *entity.TradeBook, to entity.TradeStatus) (entity.Event, error)
}

// OutboxRepository reads and acknowledges recorded events.
type OutboxRepository interface {
	FetchPending(ctx context.Context, limit int) ([]entity.OutboxRecord, error)
	MarkSent(ctx context.Context, id int64) error
}

// AnalyticsRepository aggregates sales figures.
type AnalyticsRepository interface {
	Summary(ctx context.Context, year int) (*entity.SalesSummary, error)
}
