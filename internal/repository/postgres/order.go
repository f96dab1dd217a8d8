package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/repository"
	"github.com/lib/pq"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new OrderRepository backed by Postgres.
func NewOrderRepository(db *sql.DB) repository.OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) PlaceOrder(ctx context.Context, order *entity.Order) (*entity.OrderPlaced, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		"INSERT INTO orders (user_id, total_price, status, shipment_method) VALUES ($1, $2, $3, $4) RETURNING order_id, created_at",
		order.BuyerID, order.Total, order.Status, order.ShipmentMethod,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range order.Lines {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO order_items (order_id, sale_book_id, title, unit_price, quantity, total_price) VALUES ($1, $2, $3, $4, $5, $6)",
			order.ID, item.BookID, item.Title, item.UnitPrice, item.Quantity, item.LineTotal,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert order item: %w", err)
		}

		// Decrement stock
		res, err := tx.ExecContext(ctx,
			"UPDATE salebooks SET quantity = quantity - $1 WHERE sale_book_id = $2 AND quantity >= $1",
			item.Quantity, item.BookID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update book stock: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return nil, apperr.ForItem(apperr.Conflict, item.BookID, "stock for book %d changed during checkout", item.BookID)
		}
	}

	event := entity.NewOrderPlaced(order)
	if err := insertOutbox(ctx, tx, entity.TopicOrdersPlaced, order.ID, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &event, nil
}

const selectOrders = `
	SELECT o.order_id, o.user_id, o.total_price, o.status, o.shipment_method, o.created_at,
		u.first_name, u.last_name, u.email, u.phone_number
	FROM orders o
	JOIN users u ON u.user_id = o.user_id`

func scanOrder(row rowScanner) (entity.Order, error) {
	var (
		o entity.Order
		u entity.User
	)
	err := row.Scan(&o.ID, &o.BuyerID, &o.Total, &o.Status, &o.ShipmentMethod, &o.CreatedAt,
		&u.FirstName, &u.LastName, &u.Email, &u.PhoneNumber)
	u.ID = o.BuyerID
	o.Buyer = &u
	return o, err
}

func (r *orderRepository) FindByID(ctx context.Context, id int64) (*entity.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, selectOrders+" WHERE o.order_id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.NotFound, "order %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order %d: %w", id, err)
	}

	orders := []entity.Order{o}
	if err := r.loadLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *orderRepository) FindRecent(ctx context.Context, limit int) ([]entity.Order, error) {
	rows, err := r.db.QueryContext(ctx, selectOrders+" ORDER BY o.created_at DESC, o.order_id DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []entity.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}

	if err := r.loadLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadLines fetches the items of all given orders in one query.
func (r *orderRepository) loadLines(ctx context.Context, orders []entity.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT order_id, sale_book_id, title, unit_price, quantity, total_price FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id",
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			item    entity.OrderLine
		)
		if err := rows.Scan(&orderID, &item.BookID, &item.Title, &item.UnitPrice, &item.Quantity, &item.LineTotal); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		i := index[orderID]
		orders[i].Lines = append(orders[i].Lines, item)
	}
	return rows.Err()
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id int64, from, to entity.OrderStatus) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET status = $1 WHERE order_id = $2 AND status = $3",
		to, id, from,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func (r *orderRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM orders WHERE order_id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete order %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.NotFound, "order %d not found", id)
	}
	return nil
}
