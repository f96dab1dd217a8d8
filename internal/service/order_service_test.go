package service

import (
	"context"
	"testing"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkDeliveredTwice(t *testing.T) {
	s := newBookstore(t)
	ctx := context.Background()
	order, err := newCheckout(s).Checkout(ctx, CheckoutRequest{BuyerID: 7, Lines: []LineRequest{{BookID: 3, Quantity: 1}}})
	require.NoError(t, err)

	svc := NewOrderService(s.Orders())
	delivered, err := svc.MarkDelivered(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderDelivered, delivered.Status)

	_, err = svc.MarkDelivered(ctx, order.ID)
	assert.Equal(t, apperr.InvalidTransition, apperr.KindOf(err))

	got, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderDelivered, got.Status)
}

func TestMarkDeliveredUnknownOrder(t *testing.T) {
	s := newBookstore(t)
	_, err := NewOrderService(s.Orders()).MarkDelivered(context.Background(), 404)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestOrderListAndDelete(t *testing.T) {
	s := newBookstore(t)
	ctx := context.Background()
	checkout := newCheckout(s)
	for _, id := range []int64{3, 4} {
		_, err := checkout.Checkout(ctx, CheckoutRequest{BuyerID: 7, Lines: []LineRequest{{BookID: id, Quantity: 1}}})
		require.NoError(t, err)
	}

	svc := NewOrderService(s.Orders())
	orders, err := svc.GetRecentOrders(ctx, 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Greater(t, orders[0].ID, orders[1].ID)
	require.NotNil(t, orders[0].Buyer)
	assert.Equal(t, "Rana K", orders[0].Buyer.FullName())

	require.NoError(t, svc.Delete(ctx, orders[0].ID))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(svc.Delete(ctx, orders[0].ID)))
	// stock is not returned on delete
	assert.Equal(t, 1, s.Stock(4))
}

func TestCatalogUpdate(t *testing.T) {
	s := newBookstore(t)
	ctx := context.Background()
	svc := NewCatalogService(s.Books())

	var p repository.Patch
	p.Set("discount", decimal.NewFromInt(10))
	p.Set("quantity", 12)
	b, err := svc.Update(ctx, 3, p)
	require.NoError(t, err)
	assert.Equal(t, 12, b.Quantity)
	dp, ok := b.DiscountedPrice()
	require.True(t, ok)
	assert.Equal(t, "9.00", dp.StringFixed(2))

	tests := []struct {
		name  string
		patch repository.Patch
	}{
		{"empty", nil},
		{"unknown column", repository.Patch{{Field: "sale_book_id", Value: int64(1)}}},
		{"negative quantity", repository.Patch{{Field: "quantity", Value: -1}}},
		{"negative price", repository.Patch{{Field: "price", Value: decimal.NewFromInt(-2)}}},
		{"discount over 100", repository.Patch{{Field: "discount", Value: decimal.NewFromInt(101)}}},
		{"bad status", repository.Patch{{Field: "status", Value: "sold"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx, 3, tt.patch)
			assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
		})
	}

	_, err = svc.Update(ctx, 99, repository.Patch{{Field: "title", Value: "X"}})
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestCatalogLatestDefaultsToFive(t *testing.T) {
	s := newBookstore(t)
	for i := 0; i < 7; i++ {
		s.PutBook(entity.SaleBook{Title: "Extra", Price: decimal.NewFromInt(1), Quantity: 1})
	}
	books, err := NewCatalogService(s.Books()).Latest(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, books, 5)
}

func TestUserUpdate(t *testing.T) {
	s := newBookstore(t)
	ctx := context.Background()
	svc := NewUserService(s.Users())

	var p repository.Patch
	p.Set("city", "Beirut")
	p.Set("email", "rana@books.example")
	u, err := svc.Update(ctx, 7, p)
	require.NoError(t, err)
	assert.Equal(t, "Beirut", u.City)
	assert.Equal(t, "rana@books.example", u.Email)

	_, err = svc.Update(ctx, 7, repository.Patch{{Field: "email", Value: "not-an-email"}})
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
	_, err = svc.Update(ctx, 7, repository.Patch{{Field: "role", Value: "root"}})
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
	_, err = svc.Get(ctx, 1234)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}
