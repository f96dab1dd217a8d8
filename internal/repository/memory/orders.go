package memory

import (
	"context"
	"sort"
	"strconv"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
)

type OrderRepository struct{ s *Store }

func (r *OrderRepository) PlaceOrder(_ context.Context, order *entity.Order) (*entity.OrderPlaced, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	// Same semantics as the conditional UPDATE: check every line first so a
	// short line leaves all stock untouched.
	for _, l := range order.Lines {
		b, ok := r.s.books[l.BookID]
		if !ok || b.Quantity < l.Quantity {
			return nil, apperr.ForItem(apperr.Conflict, l.BookID, "stock for book %d changed during checkout", l.BookID)
		}
	}
	for _, l := range order.Lines {
		b := r.s.books[l.BookID]
		b.Quantity -= l.Quantity
		r.s.books[l.BookID] = b
	}

	r.s.nextOrderID++
	order.ID = r.s.nextOrderID
	order.CreatedAt = r.s.now()
	r.s.orders[order.ID] = cloneOrder(*order)

	event := entity.NewOrderPlaced(order)
	if err := r.s.appendOutboxLocked(entity.TopicOrdersPlaced, strconv.FormatInt(order.ID, 10), event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *OrderRepository) FindByID(_ context.Context, id int64) (*entity.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "order %d not found", id)
	}
	o = cloneOrder(o)
	if u, ok := r.s.users[o.BuyerID]; ok {
		o.Buyer = &u
	}
	return &o, nil
}

func (r *OrderRepository) FindRecent(_ context.Context, limit int) ([]entity.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	orders := make([]entity.Order, 0, len(r.s.orders))
	for _, o := range r.s.orders {
		o = cloneOrder(o)
		if u, ok := r.s.users[o.BuyerID]; ok {
			o.Buyer = &u
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (r *OrderRepository) UpdateStatus(_ context.Context, id int64, from, to entity.OrderStatus) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok || o.Status != from {
		return 0, nil
	}
	o.Status = to
	r.s.orders[id] = o
	return 1, nil
}

func (r *OrderRepository) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[id]; !ok {
		return apperr.Newf(apperr.NotFound, "order %d not found", id)
	}
	delete(r.s.orders, id)
	return nil
}
