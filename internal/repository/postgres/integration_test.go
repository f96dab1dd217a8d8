//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "bookstore",
			"POSTGRES_PASSWORD": "bookstore",
			"POSTGRES_DB":       "bookstore",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(context.Background()) }) //nolint:errcheck

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://bookstore:bookstore@%s:%s/bookstore?sslmode=disable", host, port.Port())
	db, err := Open(ctx, Options{DSN: dsn, MaxOpenConns: 10})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `
		INSERT INTO genres (genre_id, genre_name) VALUES (1, 'Fiction');
		INSERT INTO users (user_id, first_name, last_name, email) VALUES (7, 'Rana', 'K', 'rana@example.com');
		INSERT INTO users (user_id, first_name, email, phone_number) VALUES (8, 'Omar', 'omar@example.com', '555');
		INSERT INTO salebooks (sale_book_id, title, genre_id, price, quantity) VALUES (3, 'Dune', 1, 10.00, 5);
		INSERT INTO salebooks (sale_book_id, title, genre_id, price, quantity) VALUES (4, 'Emma', 1, 4.50, 1);
		INSERT INTO tradebooks (trade_book_id, user_id, title) VALUES (20, 8, 'Ulysses');
	`)
	require.NoError(t, err)
}

func TestIntegrationPlaceOrder(t *testing.T) {
	db := startPostgres(t)
	seed(t, db)
	ctx := context.Background()
	books := NewBookRepository(db)
	orders := NewOrderRepository(db)

	b3, err := books.FindByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Fiction", b3.GenreName)

	o := entity.NewOrder(7, []entity.OrderLine{entity.NewOrderLine(*b3, 2)}, "")
	ev, err := orders.PlaceOrder(ctx, o)
	require.NoError(t, err)
	assert.NotZero(t, o.ID)
	assert.True(t, ev.Total.Equal(decimal.NewFromInt(20)))

	b3, err = books.FindByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, b3.Quantity)

	got, err := orders.FindByID(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "20.00", got.Total.StringFixed(2))
	assert.Equal(t, "rana@example.com", got.Buyer.Email)

	pending, err := NewOutboxRepository(db).FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "OrderPlaced", pending[0].EventType)

	n, err := orders.UpdateStatus(ctx, o.ID, entity.OrderPending, entity.OrderDelivered)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = orders.UpdateStatus(ctx, o.ID, entity.OrderPending, entity.OrderDelivered)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIntegrationConcurrentLastUnit(t *testing.T) {
	db := startPostgres(t)
	seed(t, db)
	ctx := context.Background()
	books := NewBookRepository(db)
	orders := NewOrderRepository(db)
	b4, err := books.FindByID(ctx, 4)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orders.PlaceOrder(ctx, entity.NewOrder(7, []entity.OrderLine{entity.NewOrderLine(*b4, 1)}, ""))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if apperr.KindOf(err) == apperr.Conflict {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 4, conflicts)
	b4, err = books.FindByID(ctx, 4)
	require.NoError(t, err)
	assert.Zero(t, b4.Quantity)
}

func TestIntegrationTradeRequests(t *testing.T) {
	db := startPostgres(t)
	seed(t, db)
	ctx := context.Background()
	trades := NewTradeRepository(db)

	tb, err := trades.FindTradeBook(ctx, 20)
	require.NoError(t, err)

	req := &entity.TradeRequest{TradeBookID: 20, RequesterID: 7, OfferedBookName: "Emma", Location: "Beirut"}
	_, err = trades.CreateRequest(ctx, req, tb)
	require.NoError(t, err)

	_, err = trades.CreateRequest(ctx, &entity.TradeRequest{TradeBookID: 20, RequesterID: 7}, tb)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	_, err = db.ExecContext(ctx, `INSERT INTO users (user_id, first_name, email) VALUES (9, 'Lea', 'lea@example.com')`)
	require.NoError(t, err)
	sibling := &entity.TradeRequest{TradeBookID: 20, RequesterID: 9, OfferedBookName: "Persuasion"}
	_, err = trades.CreateRequest(ctx, sibling, tb)
	require.NoError(t, err)

	_, err = trades.ResolveRequest(ctx, req, tb, entity.TradeAccepted)
	require.NoError(t, err)
	_, err = trades.FindTradeBook(ctx, 20)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	got, err := trades.FindRequest(ctx, sibling.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TradeDeclined, got.Status)

	var declinedEvents int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM outbox WHERE event_type = 'TradeRequestDeclined'").Scan(&declinedEvents))
	assert.Equal(t, 1, declinedEvents)

	_, err = trades.ResolveRequest(ctx, req, tb, entity.TradeDeclined)
	assert.Equal(t, apperr.InvalidTransition, apperr.KindOf(err))

	sum, err := NewAnalyticsRepository(db).Summary(ctx, time.Now().Year())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalUsers)
}
