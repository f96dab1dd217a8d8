package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/repository"
)

// TradeRequestInput is a user's offer for a listed trade book.
type TradeRequestInput struct {
	TradeBookID     int64
	RequesterID     int64
	OfferedBookName string
	Description     string
	BookImage       string
	Location        string
}

// TradeService manages trade requests between users.
type TradeService struct {
	users  repository.UserRepository
	trades repository.TradeRepository
}

func NewTradeService(users repository.UserRepository, trades repository.TradeRepository) *TradeService {
	return &TradeService{users: users, trades: trades}
}

// Request records a new pending trade request and notifies the listing owner.
func (s *TradeService) Request(ctx context.Context, in TradeRequestInput) (*entity.TradeRequest, error) {
	if strings.TrimSpace(in.OfferedBookName) == "" {
		return nil, apperr.New(apperr.InvalidInput, "offered book name is required")
	}
	book, err := s.trades.FindTradeBook(ctx, in.TradeBookID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load trade book")
	}
	exists, err := s.users.Exists(ctx, in.RequesterID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to look up requester")
	}
	if !exists {
		return nil, apperr.Newf(apperr.NotFound, "user %d not found", in.RequesterID)
	}
	if book.OwnerID == in.RequesterID {
		return nil, apperr.New(apperr.InvalidInput, "cannot request a trade for your own book")
	}

	req := &entity.TradeRequest{
		TradeBookID:     in.TradeBookID,
		RequesterID:     in.RequesterID,
		OfferedBookName: in.OfferedBookName,
		Description:     in.Description,
		BookImage:       in.BookImage,
		Location:        in.Location,
	}
	if _, err := s.trades.CreateRequest(ctx, req, book); err != nil {
		return nil, apperr.Wrap(err, "failed to create trade request")
	}
	req.TradeBookTitle = book.Title

	slog.Info("Trade requested", "request_id", req.ID, "trade_book_id", book.ID, "user_id", req.RequesterID)
	return req, nil
}

func (s *TradeService) Accept(ctx context.Context, id int64) (*entity.TradeRequest, error) {
	return s.resolve(ctx, id, entity.TradeAccepted)
}

func (s *TradeService) Decline(ctx context.Context, id int64) (*entity.TradeRequest, error) {
	return s.resolve(ctx, id, entity.TradeDeclined)
}

func (s *TradeService) resolve(ctx context.Context, id int64, to entity.TradeStatus) (*entity.TradeRequest, error) {
	req, err := s.trades.FindRequest(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load trade request")
	}
	if req.Status != entity.TradePending {
		return nil, apperr.Newf(apperr.InvalidTransition, "trade request %d is already %s", id, req.Status)
	}
	book, err := s.trades.FindTradeBook(ctx, req.TradeBookID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load trade book")
	}
	if _, err := s.trades.ResolveRequest(ctx, req, book, to); err != nil {
		return nil, apperr.Wrap(err, "failed to resolve trade request")
	}

	slog.Info("Trade request resolved", "request_id", id, "status", to)
	return req, nil
}

func (s *TradeService) Get(ctx context.Context, id int64) (*entity.TradeRequest, error) {
	req, err := s.trades.FindRequest(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load trade request")
	}
	return req, nil
}

func (s *TradeService) ListByTradeBook(ctx context.Context, tradeBookID int64) ([]entity.TradeRequest, error) {
	reqs, err := s.trades.FindRequestsByTradeBook(ctx, tradeBookID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list trade requests")
	}
	return reqs, nil
}

func (s *TradeService) ListByRequester(ctx context.Context, requesterID int64) ([]entity.TradeRequest, error) {
	reqs, err := s.trades.FindRequestsByRequester(ctx, requesterID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list trade requests")
	}
	return reqs, nil
}
