package memory

import (
	"context"
	"time"

	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/shopspring/decimal"
)

type OutboxRepository struct{ s *Store }

func (r *OutboxRepository) FetchPending(_ context.Context, limit int) ([]entity.OutboxRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []entity.OutboxRecord
	for _, rec := range r.s.outbox {
		if rec.SentAt != nil {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.outbox {
		if r.s.outbox[i].ID == id {
			t := r.s.now()
			r.s.outbox[i].SentAt = &t
			return nil
		}
	}
	return nil
}

type AnalyticsRepository struct{ s *Store }

func (r *AnalyticsRepository) Summary(_ context.Context, year int) (*entity.SalesSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sum := &entity.SalesSummary{
		TotalUsers:  len(r.s.users),
		TotalOrders: len(r.s.orders),
		TotalSales:  decimal.Zero,
	}
	perGenre := make(map[string]int)
	for _, o := range r.s.orders {
		sum.TotalSales = sum.TotalSales.Add(o.Total)
		if o.CreatedAt.Year() == year {
			sum.OrdersPerMonth[o.CreatedAt.Month()-time.January]++
		}
		seen := make(map[string]bool)
		for _, l := range o.Lines {
			b, ok := r.s.books[l.BookID]
			if !ok {
				continue
			}
			g, ok := r.s.genres[b.GenreID]
			if !ok || seen[g.Name] {
				continue
			}
			seen[g.Name] = true
			perGenre[g.Name]++
		}
	}
	for _, tb := range r.s.tradeBooks {
		if tb.PostDate.Year() == year {
			sum.TradeBooksPerMonth[tb.PostDate.Month()-time.January]++
		}
	}
	for name, n := range perGenre {
		sum.BestSellers = append(sum.BestSellers, entity.GenreSales{Genre: name, Orders: n})
	}
	sortGenreSales(sum.BestSellers)
	return sum, nil
}
