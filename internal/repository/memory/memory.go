// Package memory is an in-process storage driver. All repositories returned
// by a Store share one lock, so multi-table operations are atomic.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type Store struct {
	mu sync.Mutex

	users      map[int64]entity.User
	genres     map[int64]entity.Genre
	books      map[int64]entity.SaleBook
	orders     map[int64]entity.Order
	tradeBooks map[int64]entity.TradeBook
	requests   map[int64]entity.TradeRequest
	outbox     []entity.OutboxRecord

	nextBookID    int64
	nextOrderID   int64
	nextRequestID int64
	nextOutboxID  int64

	now func() time.Time
}

func New() *Store {
	return &Store{
		users:      make(map[int64]entity.User),
		genres:     make(map[int64]entity.Genre),
		books:      make(map[int64]entity.SaleBook),
		orders:     make(map[int64]entity.Order),
		tradeBooks: make(map[int64]entity.TradeBook),
		requests:   make(map[int64]entity.TradeRequest),
		now:        time.Now,
	}
}

// SetClock replaces the time source used for created-at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Users() *UserRepository { return &UserRepository{s} }
func (s *Store) Books() *BookRepository { return &BookRepository{s} }
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s} }
func (s *Store) Trades() *TradeRepository { return &TradeRepository{s} }
func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{s} }
func (s *Store) Analytics() *AnalyticsRepository { return &AnalyticsRepository{s} }

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u entity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.users[u.ID] = u
}

func (s *Store) PutGenre(g entity.Genre) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genres[g.ID] = g
}

// PutBook inserts or replaces a sale book. A zero ID is assigned the next free one.
func (s *Store) PutBook(b entity.SaleBook) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putBookLocked(b)
}

func (s *Store) putBookLocked(b entity.SaleBook) int64 {
	if b.ID == 0 {
		s.nextBookID++
		b.ID = s.nextBookID
	} else if b.ID > s.nextBookID {
		s.nextBookID = b.ID
	}
	if b.PostDate.IsZero() {
		b.PostDate = s.now()
	}
	if b.Status == "" {
		b.Status = entity.BookStatusAvailable
	}
	s.books[b.ID] = b
	return b.ID
}

func (s *Store) PutTradeBook(tb entity.TradeBook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tb.PostDate.IsZero() {
		tb.PostDate = s.now()
	}
	s.tradeBooks[tb.ID] = tb
}

// Stock reports the current quantity of a book, or -1 if it does not exist.
func (s *Store) Stock(bookID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[bookID]
	if !ok {
		return -1
	}
	return b.Quantity
}

// OrderCount reports how many orders are stored.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) appendOutboxLocked(topic, key string, event entity.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.nextOutboxID++
	s.outbox = append(s.outbox, entity.OutboxRecord{
		ID:        s.nextOutboxID,
		EventID:   uuid.NewString(),
		Topic:     topic,
		Key:       key,
		EventType: event.EventType(),
		Payload:   payload,
		CreatedAt: s.now(),
	})
	return nil
}

func cloneOrder(o entity.Order) entity.Order {
	o.Lines = append([]entity.OrderLine(nil), o.Lines...)
	if o.Buyer != nil {
		b := *o.Buyer
		o.Buyer = &b
	}
	return o
}

func sortedBooks(m map[int64]entity.SaleBook) []entity.SaleBook {
	out := make([]entity.SaleBook, 0, len(m))
	for _, b := range m {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortGenreSales(gs []entity.GenreSales) {
	sort.Slice(gs, func(i, j int) bool {
		if gs[i].Orders != gs[j].Orders {
			return gs[i].Orders > gs[j].Orders
		}
		return gs[i].Genre < gs[j].Genre
	})
}
