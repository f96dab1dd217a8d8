package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/messaging"
	"github.com/egannguyen/go-bookstore/internal/metrics"
	"github.com/egannguyen/go-bookstore/internal/repository/memory"
	"github.com/egannguyen/go-bookstore/internal/service"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	topics  []string
	msgs    []messaging.Message
	failAll bool
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, msg messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func placeOrders(t *testing.T, n int) *memory.Store {
	t.Helper()
	s := memory.New()
	s.PutUser(entity.User{ID: 1, FirstName: "Ada", Email: "ada@example.com"})
	s.PutBook(entity.SaleBook{ID: 1, Title: "Dune", Price: decimal.NewFromInt(10), Quantity: 100})
	svc := service.NewCheckoutService(s.Users(), s.Books(), s.Orders())
	for i := 0; i < n; i++ {
		_, err := svc.Checkout(context.Background(), service.CheckoutRequest{
			BuyerID: 1,
			Lines:   []service.LineRequest{{BookID: 1, Quantity: 1}},
		})
		require.NoError(t, err)
	}
	return s
}

func TestRelayPublishesInOrderAndMarksSent(t *testing.T) {
	s := placeOrders(t, 3)
	pub := &recordingPublisher{}
	m := metrics.Discard()
	relay := NewRelay(s.Outbox(), pub, m, Config{BatchSize: 2})

	n, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Len(t, pub.msgs, 3)
	for i, msg := range pub.msgs {
		assert.Equal(t, entity.TopicOrdersPlaced, pub.topics[i])
		assert.Equal(t, "OrderPlaced", msg.EventType)
		assert.NotEmpty(t, msg.ID)
		ev, err := entity.DecodeEvent(msg.EventType, msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), ev.(entity.OrderPlaced).OrderID)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OutboxPublished))
}

func TestRelayKeepsRecordsWhenBrokerFails(t *testing.T) {
	s := placeOrders(t, 2)
	pub := &recordingPublisher{failAll: true}
	m := metrics.Discard()
	relay := NewRelay(s.Outbox(), pub, m, Config{})

	n, err := relay.RelayOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxFailures))

	pending, err := s.Outbox().FetchPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	pub.failAll = false
	n, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRelayServeStopsOnCancel(t *testing.T) {
	s := placeOrders(t, 1)
	pub := &recordingPublisher{}
	relay := NewRelay(s.Outbox(), pub, metrics.Discard(), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := relay.Serve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
