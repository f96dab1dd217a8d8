package entity

import (
	"errors"
	"time"
)

type TradeStatus string

const (
	TradePending  TradeStatus = "pending"
	TradeAccepted TradeStatus = "accepted"
	TradeDeclined TradeStatus = "declined"
)

// TradeRequest is one user's offer to swap a book of theirs for a listed trade book.
type TradeRequest struct {
	ID              int64       `json:"request_id"`
	TradeBookID     int64       `json:"trade_book_id"`
	RequesterID     int64       `json:"user_id"`
	OfferedBookName string      `json:"book_name"`
	Description     string      `json:"description"`
	BookImage       string      `json:"book_image"`
	Location        string      `json:"location"`
	Status          TradeStatus `json:"status"`
	RequestDate     time.Time   `json:"request_date"`

	// TradeBookTitle and OwnerID are populated on reads that join the
	// listing. Both are zero once the listing is gone.
	TradeBookTitle string `json:"trade_book_title,omitempty"`
	OwnerID        int64  `json:"owner_id,omitempty"`
}

var ErrTradeResolved = errors.New("trade request already resolved")

// Resolve moves a pending request to accepted or declined.
func (r *TradeRequest) Resolve(to TradeStatus) error {
	if r.Status != TradePending {
		return ErrTradeResolved
	}
	if to != TradeAccepted && to != TradeDeclined {
		return errors.New("invalid trade resolution: " + string(to))
	}
	r.Status = to
	return nil
}
