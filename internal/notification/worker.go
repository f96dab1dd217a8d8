package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/messaging"
	"github.com/egannguyen/go-bookstore/internal/repository"
	"golang.org/x/sync/errgroup"
)

// Topics the worker consumes.
var Topics = []string{
	entity.TopicOrdersPlaced,
	entity.TopicTradesRequested,
	entity.TopicTradesResolved,
}

// Worker consumes domain events and dispatches the matching notifications.
// Delivery failures are logged and dropped; only failures to load the people
// involved are returned so the broker can redeliver.
type Worker struct {
	sub        messaging.Subscriber
	dispatcher Dispatcher
	users      repository.UserRepository
	groupID    string
}

func NewWorker(sub messaging.Subscriber, dispatcher Dispatcher, users repository.UserRepository, groupID string) *Worker {
	return &Worker{sub: sub, dispatcher: dispatcher, users: users, groupID: groupID}
}

// Serve runs one consumer per topic until ctx is cancelled or a consumer fails.
func (w *Worker) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range Topics {
		g.Go(func() error {
			return w.sub.Consume(ctx, topic, w.groupID, w.Handle)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (w *Worker) String() string {
	return "notification-worker"
}

func (w *Worker) Handle(ctx context.Context, msg messaging.Message) error {
	ev, err := entity.DecodeEvent(msg.EventType, msg.Payload)
	if err != nil {
		slog.Error("Dropping undecodable event", "event_id", msg.ID, "event_type", msg.EventType, "err", err)
		return nil
	}

	switch e := ev.(type) {
	case entity.OrderPlaced:
		return w.orderPlaced(ctx, e)
	case entity.TradeRequested:
		return w.tradeRequested(ctx, e)
	case entity.TradeRequestAccepted:
		return w.tradeResolved(ctx, e.TradeResolution, entity.TradeAccepted)
	case entity.TradeRequestDeclined:
		return w.tradeResolved(ctx, e.TradeResolution, entity.TradeDeclined)
	}
	return nil
}

func (w *Worker) orderPlaced(ctx context.Context, e entity.OrderPlaced) error {
	buyer, err := w.users.FindByID(ctx, e.BuyerID)
	if err != nil {
		return dropMissing(err, fmt.Sprintf("failed to load buyer %d", e.BuyerID))
	}
	n := OrderNotice{
		OrderID:        e.OrderID,
		Buyer:          *buyer,
		Lines:          e.Lines,
		Total:          e.Total,
		ShipmentMethod: e.ShipmentMethod,
	}
	if err := w.dispatcher.NotifyBuyer(ctx, n); err != nil {
		slog.Error("Failed to notify buyer", "order_id", e.OrderID, "err", err)
	}
	if err := w.dispatcher.NotifyOperator(ctx, n); err != nil {
		slog.Error("Failed to notify operator", "order_id", e.OrderID, "err", err)
	}
	return nil
}

func (w *Worker) tradeRequested(ctx context.Context, e entity.TradeRequested) error {
	n, err := w.tradeNotice(ctx, e.OwnerID, e.RequesterID)
	if err != nil {
		return dropMissing(err, "failed to load trade partners")
	}
	n.RequestID = e.RequestID
	n.TradeBookTitle = e.TradeBookTitle
	n.OfferedBookName = e.OfferedBookName
	n.Location = e.Location
	if err := w.dispatcher.NotifyTradeOwner(ctx, n); err != nil {
		slog.Error("Failed to notify trade owner", "request_id", e.RequestID, "err", err)
	}
	return nil
}

func (w *Worker) tradeResolved(ctx context.Context, e entity.TradeResolution, status entity.TradeStatus) error {
	n, err := w.tradeNotice(ctx, e.OwnerID, e.RequesterID)
	if err != nil {
		return dropMissing(err, "failed to load trade partners")
	}
	n.RequestID = e.RequestID
	n.TradeBookTitle = e.TradeBookTitle
	n.OfferedBookName = e.OfferedBookName
	if err := w.dispatcher.NotifyTradeRequester(ctx, n, status); err != nil {
		slog.Error("Failed to notify trade requester", "request_id", e.RequestID, "status", status, "err", err)
	}
	return nil
}

func (w *Worker) tradeNotice(ctx context.Context, ownerID, requesterID int64) (TradeNotice, error) {
	owner, err := w.users.FindByID(ctx, ownerID)
	if err != nil {
		return TradeNotice{}, fmt.Errorf("owner %d: %w", ownerID, err)
	}
	requester, err := w.users.FindByID(ctx, requesterID)
	if err != nil {
		return TradeNotice{}, fmt.Errorf("requester %d: %w", requesterID, err)
	}
	return TradeNotice{Owner: *owner, Requester: *requester}, nil
}

// dropMissing swallows NotFound since redelivery cannot bring a deleted user back.
func dropMissing(err error, msg string) error {
	if apperr.KindOf(err) == apperr.NotFound {
		slog.Warn("Dropping notification", "reason", msg, "err", err)
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
