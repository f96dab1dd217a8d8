package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/repository"
)

type analyticsRepository struct {
	db *sql.DB
}

// NewAnalyticsRepository creates a new AnalyticsRepository backed by Postgres.
func NewAnalyticsRepository(db *sql.DB) repository.AnalyticsRepository {
	return &analyticsRepository{db: db}
}

func (r *analyticsRepository) Summary(ctx context.Context, year int) (*entity.SalesSummary, error) {
	var sum entity.SalesSummary
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM orders),
			(SELECT COALESCE(SUM(total_price), 0) FROM orders)`,
	).Scan(&sum.TotalUsers, &sum.TotalOrders, &sum.TotalSales)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}

	if err := r.perMonth(ctx, "orders", "created_at", year, &sum.OrdersPerMonth); err != nil {
		return nil, err
	}
	if err := r.perMonth(ctx, "tradebooks", "post_date", year, &sum.TradeBooksPerMonth); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT g.genre_name, COUNT(DISTINCT oi.order_id)
		FROM order_items oi
		JOIN salebooks b ON b.sale_book_id = oi.sale_book_id
		JOIN genres g ON g.genre_id = b.genre_id
		GROUP BY g.genre_name
		ORDER BY 2 DESC, 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query best sellers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var gs entity.GenreSales
		if err := rows.Scan(&gs.Genre, &gs.Orders); err != nil {
			return nil, fmt.Errorf("failed to scan best seller: %w", err)
		}
		sum.BestSellers = append(sum.BestSellers, gs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating best seller rows: %w", err)
	}
	return &sum, nil
}

// perMonth fills a zero-based month histogram for one year. table and column
// are fixed identifiers chosen by the caller.
func (r *analyticsRepository) perMonth(ctx context.Context, table, column string, year int, into *[12]int) error {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT EXTRACT(MONTH FROM %[2]s)::int, COUNT(*)
		FROM %[1]s
		WHERE EXTRACT(YEAR FROM %[2]s) = $1
		GROUP BY 1`, table, column), year)
	if err != nil {
		return fmt.Errorf("failed to query %s per month: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var month, n int
		if err := rows.Scan(&month, &n); err != nil {
			return fmt.Errorf("failed to scan %s per month: %w", table, err)
		}
		if month >= 1 && month <= 12 {
			into[month-1] = n
		}
	}
	return rows.Err()
}
