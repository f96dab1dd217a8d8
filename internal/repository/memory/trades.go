package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
)

type TradeRepository struct{ s *Store }

func (r *TradeRepository) FindTradeBook(_ context.Context, id int64) (*entity.TradeBook, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tb, ok := r.s.tradeBooks[id]
	if !ok {
		return nil, apperr.ForItem(apperr.NotFound, id, "trade book %d not found", id)
	}
	return &tb, nil
}

func (r *TradeRepository) withListing(req entity.TradeRequest) entity.TradeRequest {
	if tb, ok := r.s.tradeBooks[req.TradeBookID]; ok {
		req.TradeBookTitle = tb.Title
		req.OwnerID = tb.OwnerID
	}
	return req
}

func (r *TradeRepository) FindRequest(_ context.Context, id int64) (*entity.TradeRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "trade request %d not found", id)
	}
	req = r.withListing(req)
	return &req, nil
}

func (r *TradeRepository) filter(keep func(entity.TradeRequest) bool) []entity.TradeRequest {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []entity.TradeRequest
	for _, req := range r.s.requests {
		if keep(req) {
			out = append(out, r.withListing(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r *TradeRepository) FindRequestsByTradeBook(_ context.Context, tradeBookID int64) ([]entity.TradeRequest, error) {
	return r.filter(func(req entity.TradeRequest) bool { return req.TradeBookID == tradeBookID }), nil
}

func (r *TradeRepository) FindRequestsByRequester(_ context.Context, requesterID int64) ([]entity.TradeRequest, error) {
	return r.filter(func(req entity.TradeRequest) bool { return req.RequesterID == requesterID }), nil
}

func (r *TradeRepository) CreateRequest(_ context.Context, req *entity.TradeRequest, book *entity.TradeBook) (*entity.TradeRequested, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.requests {
		if existing.TradeBookID == req.TradeBookID && existing.RequesterID == req.RequesterID {
			return nil, apperr.Newf(apperr.Conflict, "user %d already requested trade book %d", req.RequesterID, req.TradeBookID)
		}
	}

	r.s.nextRequestID++
	req.ID = r.s.nextRequestID
	req.Status = entity.TradePending
	req.RequestDate = r.s.now()
	r.s.requests[req.ID] = *req

	event := entity.TradeRequested{
		RequestID:       req.ID,
		TradeBookID:     book.ID,
		TradeBookTitle:  book.Title,
		OwnerID:         book.OwnerID,
		RequesterID:     req.RequesterID,
		OfferedBookName: req.OfferedBookName,
		Location:        req.Location,
		RequestedAt:     req.RequestDate,
	}
	if err := r.s.appendOutboxLocked(entity.TopicTradesRequested, strconv.FormatInt(req.ID, 10), event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *TradeRepository) ResolveRequest(_ context.Context, req *entity.TradeRequest, book *entity.TradeBook, to entity.TradeStatus) (entity.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.requests[req.ID]
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "trade request %d not found", req.ID)
	}
	if err := stored.Resolve(to); err != nil {
		return nil, apperr.Newf(apperr.InvalidTransition, "trade request %d is already %s", req.ID, stored.Status)
	}
	r.s.requests[req.ID] = stored
	req.Status = stored.Status

	res := entity.TradeResolution{
		RequestID:       req.ID,
		TradeBookTitle:  book.Title,
		OwnerID:         book.OwnerID,
		RequesterID:     req.RequesterID,
		OfferedBookName: req.OfferedBookName,
		ResolvedAt:      r.s.now(),
	}
	var event entity.Event
	switch to {
	case entity.TradeAccepted:
		event = entity.TradeRequestAccepted{TradeResolution: res}
	case entity.TradeDeclined:
		event = entity.TradeRequestDeclined{TradeResolution: res}
	default:
		return nil, fmt.Errorf("unsupported trade status %q", to)
	}
	if err := r.s.appendOutboxLocked(entity.TopicTradesResolved, strconv.FormatInt(req.ID, 10), event); err != nil {
		return nil, err
	}
	if to == entity.TradeAccepted {
		delete(r.s.tradeBooks, book.ID)
		if err := r.declineSiblingsLocked(req.ID, book, res.ResolvedAt); err != nil {
			return nil, err
		}
	}
	return event, nil
}

// declineSiblingsLocked declines the other pending requests on an accepted
// listing, oldest first.
func (r *TradeRepository) declineSiblingsLocked(acceptedID int64, book *entity.TradeBook, at time.Time) error {
	var siblings []int64
	for id, other := range r.s.requests {
		if id != acceptedID && other.TradeBookID == book.ID && other.Status == entity.TradePending {
			siblings = append(siblings, id)
		}
	}
	sort.Slice(siblings, func(i, j int) bool { return siblings[i] < siblings[j] })

	for _, id := range siblings {
		other := r.s.requests[id]
		other.Status = entity.TradeDeclined
		r.s.requests[id] = other
		event := entity.TradeRequestDeclined{TradeResolution: entity.TradeResolution{
			RequestID:       id,
			TradeBookTitle:  book.Title,
			OwnerID:         book.OwnerID,
			RequesterID:     other.RequesterID,
			OfferedBookName: other.OfferedBookName,
			ResolvedAt:      at,
		}}
		if err := r.s.appendOutboxLocked(entity.TopicTradesResolved, strconv.FormatInt(id, 10), event); err != nil {
			return err
		}
	}
	return nil
}
