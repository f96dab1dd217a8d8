package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role distinguishes store operators from buyers.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// User is a registered account. Buyers and trade-book owners are both users.
type User struct {
	ID                    int64     `json:"user_id"`
	FirstName             string    `json:"first_name"`
	LastName              string    `json:"last_name"`
	Email                 string    `json:"email"`
	PhoneNumber           string    `json:"phone_number"`
	Floor                 string    `json:"floor,omitempty"`
	Building              string    `json:"building,omitempty"`
	Street                string    `json:"street,omitempty"`
	City                  string    `json:"city,omitempty"`
	AdditionalDescription string    `json:"additional_description,omitempty"`
	Role                  Role      `json:"role"`
	CreatedAt             time.Time `json:"created_at"`
}

// FullName joins first and last name the way notifications address people.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Genre groups books for browsing and analytics.
type Genre struct {
	ID   int64  `json:"genre_id"`
	Name string `json:"genre_name"`
}

// Book listing statuses.
const (
	BookStatusAvailable = "available"
	BookStatusHidden    = "hidden"
)

// SaleBook is a sellable item: a book listed with a unit price and a stock count.
type SaleBook struct {
	ID          int64           `json:"sale_book_id"`
	Title       string          `json:"title"`
	GenreID     int64           `json:"genre_id"`
	GenreName   string          `json:"genre_name,omitempty"`
	AuthorName  string          `json:"author_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Description string          `json:"description"`
	BookImage   string          `json:"book_image"`
	Discount    decimal.Decimal `json:"discount"`
	Status      string          `json:"status"`
	PostDate    time.Time       `json:"post_date"`
}

var hundred = decimal.NewFromInt(100)

// DiscountedPrice applies the percentage discount to the unit price.
// It returns false when the book carries no discount.
func (b SaleBook) DiscountedPrice() (decimal.Decimal, bool) {
	if !b.Discount.IsPositive() {
		return decimal.Decimal{}, false
	}
	off := b.Price.Mul(b.Discount).Div(hundred)
	return b.Price.Sub(off).Round(2), true
}

// TradeBook is a book a user offers for trade rather than sale.
type TradeBook struct {
	ID          int64     `json:"trade_book_id"`
	OwnerID     int64     `json:"user_id"`
	Title       string    `json:"title"`
	AuthorName  string    `json:"author_name"`
	GenreID     int64     `json:"genre_id"`
	Description string    `json:"description"`
	BookImage   string    `json:"book_image"`
	PostDate    time.Time `json:"post_date"`
}
