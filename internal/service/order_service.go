package service

import (
	"context"
	"log/slog"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/repository"
)

const (
	defaultOrderLimit = 50
	maxOrderLimit     = 200
)

// OrderService handles order administration after checkout.
type OrderService struct {
	orderRepo repository.OrderRepository
}

func NewOrderService(orderRepo repository.OrderRepository) *OrderService {
	return &OrderService{orderRepo: orderRepo}
}

// Get returns one order with its lines and buyer summary.
func (s *OrderService) Get(ctx context.Context, id int64) (*entity.Order, error) {
	o, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load order")
	}
	return o, nil
}

// GetRecentOrders returns the latest orders.
func (s *OrderService) GetRecentOrders(ctx context.Context, limit int) ([]entity.Order, error) {
	if limit <= 0 {
		limit = defaultOrderLimit
	}
	if limit > maxOrderLimit {
		limit = maxOrderLimit
	}
	orders, err := s.orderRepo.FindRecent(ctx, limit)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list orders")
	}
	return orders, nil
}

// MarkDelivered moves a pending order to delivered.
func (s *OrderService) MarkDelivered(ctx context.Context, id int64) (*entity.Order, error) {
	o, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load order")
	}
	if err := o.MarkDelivered(); err != nil {
		return nil, apperr.Newf(apperr.InvalidTransition, "order %d is already delivered", id)
	}

	n, err := s.orderRepo.UpdateStatus(ctx, id, entity.OrderPending, entity.OrderDelivered)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to update order")
	}
	if n == 0 {
		// delivered or deleted since it was read
		return nil, apperr.Newf(apperr.InvalidTransition, "order %d is no longer pending", id)
	}

	slog.Info("Order delivered", "order_id", id)
	return o, nil
}

// Delete removes an order. Stock is not restored.
func (s *OrderService) Delete(ctx context.Context, id int64) error {
	if err := s.orderRepo.Delete(ctx, id); err != nil {
		return apperr.Wrap(err, "failed to delete order")
	}
	slog.Info("Order deleted", "order_id", id)
	return nil
}
