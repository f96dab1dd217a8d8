package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/metrics"
)

var ErrNoRecipient = errors.New("notification has no recipient address")

// Notifier implements Dispatcher by composing emails and handing them to a Mailer.
type Notifier struct {
	mailer   Mailer
	operator string
	metrics  *metrics.Metrics
}

// NewNotifier returns a Notifier. Operator emails are skipped when operator is empty.
func NewNotifier(mailer Mailer, operator string, m *metrics.Metrics) *Notifier {
	return &Notifier{mailer: mailer, operator: operator, metrics: m}
}

func (n *Notifier) NotifyBuyer(ctx context.Context, o OrderNotice) error {
	return n.send(ctx, "order_confirmation", BuyerEmail(o))
}

func (n *Notifier) NotifyOperator(ctx context.Context, o OrderNotice) error {
	if n.operator == "" {
		return nil
	}
	e := OperatorEmail(o)
	e.To = n.operator
	return n.send(ctx, "order_request", e)
}

func (n *Notifier) NotifyTradeOwner(ctx context.Context, t TradeNotice) error {
	return n.send(ctx, "trade_request", TradeOwnerEmail(t))
}

func (n *Notifier) NotifyTradeRequester(ctx context.Context, t TradeNotice, status entity.TradeStatus) error {
	e, err := TradeRequesterEmail(t, status)
	if err != nil {
		return err
	}
	return n.send(ctx, "trade_"+string(status), e)
}

func (n *Notifier) send(ctx context.Context, kind string, e Email) error {
	if e.To == "" {
		n.metrics.Notifications.WithLabelValues(kind, "skipped").Inc()
		return ErrNoRecipient
	}
	if err := n.mailer.Send(ctx, e); err != nil {
		n.metrics.Notifications.WithLabelValues(kind, "failed").Inc()
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}
	n.metrics.Notifications.WithLabelValues(kind, "sent").Inc()
	return nil
}

func writeOrder(b *strings.Builder, o OrderNotice) {
	fmt.Fprintf(b, "Order Details:\nOrder ID: %d\nOrder Info:\n", o.OrderID)
	for i, l := range o.Lines {
		fmt.Fprintf(b, "%d- (%s, %d, %s)\n", i+1, l.Title, l.Quantity, l.LineTotal.StringFixed(2))
	}
	fmt.Fprintf(b, "Shipment Method: %s\n", o.ShipmentMethod)

	total := entity.QuotedTotal(o.Total, o.ShipmentMethod)
	if o.ShipmentMethod == entity.ShipmentDelivery {
		fmt.Fprintf(b, "Total Price: %s (including $%s delivery cost)\n", total.StringFixed(2), entity.DeliveryFee)
		return
	}
	fmt.Fprintf(b, "Total Price: %s\n", total.StringFixed(2))
}

func BuyerEmail(o OrderNotice) Email {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you %s for your Order,\nYour Order was made successfully\n\n", o.Buyer.FullName())
	writeOrder(&b, o)
	return Email{To: o.Buyer.Email, Subject: "Order Confirmation", Body: b.String()}
}

// OperatorEmail has no recipient; the Notifier fills in the operator address.
func OperatorEmail(o OrderNotice) Email {
	var b strings.Builder
	fmt.Fprintf(&b, "The user %s placed an Order,\n", o.Buyer.FullName())
	writeOrder(&b, o)
	fmt.Fprintf(&b, "User Details:\nEmail: %s\nPhone Number: %s\nLocation: %s\n",
		o.Buyer.Email, o.Buyer.PhoneNumber, location(o.Buyer))
	return Email{Subject: "Order Request", Body: b.String()}
}

func TradeOwnerEmail(t TradeNotice) Email {
	var b strings.Builder
	fmt.Fprintf(&b, "User requested to trade the book with title %q with your book %q.\n\n", t.OfferedBookName, t.TradeBookTitle)
	fmt.Fprintf(&b, "User Details:\nFull Name: %s\nEmail: %s\nPhone Number: %s\nLocation: %s\n",
		t.Requester.FullName(), t.Requester.Email, t.Requester.PhoneNumber, t.Location)
	return Email{To: t.Owner.Email, Subject: "New Trade Request", Body: b.String()}
}

func TradeRequesterEmail(t TradeNotice, status entity.TradeStatus) (Email, error) {
	e := Email{To: t.Requester.Email}
	switch status {
	case entity.TradeAccepted:
		e.Subject = "Trade Request Accepted"
		e.Body = fmt.Sprintf("The user %q has accepted to trade their book %q with your book %q.\n"+
			"Please feel free to contact them on their phone number: %s\n",
			t.Owner.FullName(), t.TradeBookTitle, t.OfferedBookName, t.Owner.PhoneNumber)
	case entity.TradeDeclined:
		e.Subject = "Trade Request Declined"
		e.Body = fmt.Sprintf("The user %q has declined your trade request for their book %q with your book %q.\n",
			t.Owner.FullName(), t.TradeBookTitle, t.OfferedBookName)
	default:
		return Email{}, fmt.Errorf("no email for trade status %q", status)
	}
	return e, nil
}

func location(u entity.User) string {
	var parts []string
	for _, p := range []string{u.City, u.Street, u.Building, u.Floor} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
