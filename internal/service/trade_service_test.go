package service

import (
	"context"
	"testing"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTradeFixture(t *testing.T) (*memory.Store, *TradeService) {
	t.Helper()
	s := newBookstore(t)
	s.PutUser(entity.User{ID: 8, FirstName: "Omar", Email: "omar@example.com", PhoneNumber: "555-0101"})
	s.PutTradeBook(entity.TradeBook{ID: 20, OwnerID: 8, Title: "Ulysses"})
	return s, NewTradeService(s.Users(), s.Trades())
}

func TestTradeRequestAndAccept(t *testing.T) {
	s, svc := newTradeFixture(t)
	ctx := context.Background()

	req, err := svc.Request(ctx, TradeRequestInput{TradeBookID: 20, RequesterID: 7, OfferedBookName: "Emma", Location: "Beirut"})
	require.NoError(t, err)
	assert.Equal(t, entity.TradePending, req.Status)
	assert.Equal(t, "Ulysses", req.TradeBookTitle)

	_, err = svc.Request(ctx, TradeRequestInput{TradeBookID: 20, RequesterID: 7, OfferedBookName: "Emma"})
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	accepted, err := svc.Accept(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TradeAccepted, accepted.Status)

	_, err = svc.Decline(ctx, req.ID)
	assert.Equal(t, apperr.InvalidTransition, apperr.KindOf(err))

	pending, err := s.Outbox().FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "TradeRequested", pending[0].EventType)
	assert.Equal(t, "TradeRequestAccepted", pending[1].EventType)
}

func TestTradeAcceptDeclinesOtherPendingRequests(t *testing.T) {
	s, svc := newTradeFixture(t)
	s.PutUser(entity.User{ID: 9, FirstName: "Lea", Email: "lea@example.com"})
	ctx := context.Background()

	first, err := svc.Request(ctx, TradeRequestInput{TradeBookID: 20, RequesterID: 7, OfferedBookName: "Emma"})
	require.NoError(t, err)
	second, err := svc.Request(ctx, TradeRequestInput{TradeBookID: 20, RequesterID: 9, OfferedBookName: "Persuasion"})
	require.NoError(t, err)

	_, err = svc.Accept(ctx, first.ID)
	require.NoError(t, err)

	other, err := svc.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TradeDeclined, other.Status)

	_, err = svc.Decline(ctx, second.ID)
	assert.Equal(t, apperr.InvalidTransition, apperr.KindOf(err))

	pending, err := s.Outbox().FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 4)
	assert.Equal(t, "TradeRequestAccepted", pending[2].EventType)
	assert.Equal(t, "TradeRequestDeclined", pending[3].EventType)

	event, err := entity.DecodeEvent(pending[3].EventType, pending[3].Payload)
	require.NoError(t, err)
	declined, ok := event.(entity.TradeRequestDeclined)
	require.True(t, ok)
	assert.Equal(t, second.ID, declined.RequestID)
	assert.Equal(t, int64(9), declined.RequesterID)
	assert.Equal(t, "Ulysses", declined.TradeBookTitle)
}

func TestTradeDecline(t *testing.T) {
	_, svc := newTradeFixture(t)
	ctx := context.Background()

	req, err := svc.Request(ctx, TradeRequestInput{TradeBookID: 20, RequesterID: 7, OfferedBookName: "Emma"})
	require.NoError(t, err)
	declined, err := svc.Decline(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TradeDeclined, declined.Status)

	listed, err := svc.ListByTradeBook(ctx, 20)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, entity.TradeDeclined, listed[0].Status)
}

func TestTradeRequestRejects(t *testing.T) {
	_, svc := newTradeFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   TradeRequestInput
		kind apperr.Kind
	}{
		{"unknown listing", TradeRequestInput{TradeBookID: 1, RequesterID: 7, OfferedBookName: "Emma"}, apperr.NotFound},
		{"unknown requester", TradeRequestInput{TradeBookID: 20, RequesterID: 99, OfferedBookName: "Emma"}, apperr.NotFound},
		{"own book", TradeRequestInput{TradeBookID: 20, RequesterID: 8, OfferedBookName: "Emma"}, apperr.InvalidInput},
		{"no offered book", TradeRequestInput{TradeBookID: 20, RequesterID: 7}, apperr.InvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Request(ctx, tt.in)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	_, err := svc.Accept(ctx, 777)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestAnalyticsSummaryRoundsSales(t *testing.T) {
	s := newBookstore(t)
	ctx := context.Background()
	_, err := newCheckout(s).Checkout(ctx, CheckoutRequest{BuyerID: 7, Lines: []LineRequest{{BookID: 4, Quantity: 1}}})
	require.NoError(t, err)

	sum, err := NewAnalyticsService(s.Analytics()).Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalOrders)
	assert.Equal(t, "4.25", sum.TotalSales.StringFixed(2))
	require.Len(t, sum.BestSellers, 1)
	assert.Equal(t, "Fiction", sum.BestSellers[0].Genre)
}
