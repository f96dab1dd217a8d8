package service

import (
	"context"
	"log/slog"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/repository"
)

// LineRequest asks for a quantity of one book.
type LineRequest struct {
	BookID   int64
	Quantity int
}

// CheckoutRequest is a buyer's purchase of one or more books.
type CheckoutRequest struct {
	BuyerID        int64
	Lines          []LineRequest
	ShipmentMethod string
}

// CheckoutService turns a checkout request into a persisted order and
// decremented stock.
type CheckoutService struct {
	users  repository.UserRepository
	books  repository.BookRepository
	orders repository.OrderRepository
}

func NewCheckoutService(
	users repository.UserRepository,
	books repository.BookRepository,
	orders repository.OrderRepository,
) *CheckoutService {
	return &CheckoutService{
		users:  users,
		books:  books,
		orders: orders,
	}
}

// Checkout validates the request, prices every line at the current unit
// price and commits order, stock and event in one unit. Validation stops at
// the first failure and nothing is written unless every check passes.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*entity.Order, error) {
	slog.Info("Service: Checkout", "user_id", req.BuyerID, "items", len(req.Lines))

	// 1. Buyer
	exists, err := s.users.Exists(ctx, req.BuyerID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to look up buyer")
	}
	if !exists {
		return nil, apperr.Newf(apperr.NotFound, "user %d not found", req.BuyerID)
	}

	// 2. Shape
	if len(req.Lines) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "order must contain at least one item")
	}
	for i, l := range req.Lines {
		if l.BookID <= 0 {
			return nil, apperr.Newf(apperr.InvalidInput, "item %d: book id is required", i+1)
		}
		if l.Quantity <= 0 {
			return nil, apperr.ForItem(apperr.InvalidInput, l.BookID, "item %d: quantity must be greater than zero", i+1)
		}
	}

	// 3. Distinct books
	seen := make(map[int64]struct{}, len(req.Lines))
	for _, l := range req.Lines {
		if _, dup := seen[l.BookID]; dup {
			return nil, apperr.ForItem(apperr.DuplicateItem, l.BookID, "book %d appears more than once", l.BookID)
		}
		seen[l.BookID] = struct{}{}
	}

	// 4. Availability; prices are locked here
	lines := make([]entity.OrderLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		book, err := s.books.FindByID(ctx, l.BookID)
		if err != nil {
			return nil, apperr.Wrap(err, "failed to look up book")
		}
		if l.Quantity > book.Quantity {
			return nil, apperr.ForItem(apperr.InsufficientStock, l.BookID,
				"requested %d of book %d but only %d available", l.Quantity, l.BookID, book.Quantity)
		}
		lines = append(lines, entity.NewOrderLine(*book, l.Quantity))
	}

	// 5. Commit
	order := entity.NewOrder(req.BuyerID, lines, req.ShipmentMethod)
	if _, err := s.orders.PlaceOrder(ctx, order); err != nil {
		if apperr.KindOf(err) == apperr.Conflict {
			slog.Warn("Checkout lost stock race", "user_id", req.BuyerID, "err", err)
		}
		return nil, apperr.Wrap(err, "failed to place order")
	}

	slog.Info("Order placed", "order_id", order.ID, "user_id", order.BuyerID, "total", order.Total.StringFixed(2))
	return order, nil
}
