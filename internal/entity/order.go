package entity

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderDelivered OrderStatus = "delivered"
)

const (
	ShipmentDelivery = "delivery"
	ShipmentPickup   = "pickup"
)

// DeliveryFee is added to the amount quoted to the buyer for home delivery.
// It is not part of the stored order total.
var DeliveryFee = decimal.NewFromInt(3)

// OrderLine is one book within an order. Title and LineTotal are captured at
// purchase time and never change afterwards.
type OrderLine struct {
	BookID    int64           `json:"book_id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Order is the record of a completed checkout.
type Order struct {
	ID             int64           `json:"order_id"`
	BuyerID        int64           `json:"user_id"`
	Lines          []OrderLine     `json:"order_info"`
	Total          decimal.Decimal `json:"total_price"`
	Status         OrderStatus     `json:"status"`
	ShipmentMethod string          `json:"shipment_method"`
	CreatedAt      time.Time       `json:"created_at"`

	// Buyer is populated on reads that join the buyer directory.
	Buyer *User `json:"user,omitempty"`
}

// NewOrderLine prices a line: quantity times unit price, rounded to cents.
func NewOrderLine(book SaleBook, quantity int) OrderLine {
	return OrderLine{
		BookID:    book.ID,
		Title:     book.Title,
		Quantity:  quantity,
		UnitPrice: book.Price,
		LineTotal: book.Price.Mul(decimal.NewFromInt(int64(quantity))).Round(2),
	}
}

// NewOrder assembles a pending order whose total is the sum of the rounded
// line totals.
func NewOrder(buyerID int64, lines []OrderLine, shipmentMethod string) *Order {
	if shipmentMethod == "" {
		shipmentMethod = ShipmentDelivery
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal)
	}
	return &Order{
		BuyerID:        buyerID,
		Lines:          lines,
		Total:          total.Round(2),
		Status:         OrderPending,
		ShipmentMethod: shipmentMethod,
	}
}

// TotalQuantity is the number of copies across all lines.
func (o *Order) TotalQuantity() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// QuotedTotal is what the buyer is told to pay: the order total plus the
// delivery fee for home delivery.
func QuotedTotal(total decimal.Decimal, shipmentMethod string) decimal.Decimal {
	if shipmentMethod == ShipmentDelivery {
		return total.Add(DeliveryFee)
	}
	return total
}

// ErrAlreadyDelivered is returned when a delivered order is delivered again.
var ErrAlreadyDelivered = errors.New("order already delivered")

// MarkDelivered moves a pending order to delivered. It is the only allowed
// order transition.
func (o *Order) MarkDelivered() error {
	if o.Status != OrderPending {
		return ErrAlreadyDelivered
	}
	o.Status = OrderDelivered
	return nil
}
