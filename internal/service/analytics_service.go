package service

import (
	"context"
	"time"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/repository"
)

type AnalyticsService struct {
	repo repository.AnalyticsRepository
	now  func() time.Time
}

func NewAnalyticsService(repo repository.AnalyticsRepository) *AnalyticsService {
	return &AnalyticsService{repo: repo, now: time.Now}
}

// Summary reports totals plus month-by-month figures for the current year.
func (s *AnalyticsService) Summary(ctx context.Context) (*entity.SalesSummary, error) {
	sum, err := s.repo.Summary(ctx, s.now().Year())
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load analytics")
	}
	sum.TotalSales = sum.TotalSales.Round(2)
	return sum, nil
}
