package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/repository"
)

type tradeRepository struct {
	db *sql.DB
}

// NewTradeRepository creates a new TradeRepository backed by Postgres.
func NewTradeRepository(db *sql.DB) repository.TradeRepository {
	return &tradeRepository{db: db}
}

func (r *tradeRepository) FindTradeBook(ctx context.Context, id int64) (*entity.TradeBook, error) {
	var tb entity.TradeBook
	err := r.db.QueryRowContext(ctx, `
		SELECT trade_book_id, user_id, title, author_name, COALESCE(genre_id, 0), description, book_image, post_date
		FROM tradebooks WHERE trade_book_id = $1`, id,
	).Scan(&tb.ID, &tb.OwnerID, &tb.Title, &tb.AuthorName, &tb.GenreID, &tb.Description, &tb.BookImage, &tb.PostDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ForItem(apperr.NotFound, id, "trade book %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trade book %d: %w", id, err)
	}
	return &tb, nil
}

const selectRequests = `
	SELECT r.request_id, r.trade_book_id, r.user_id, r.book_name, r.description, r.book_image,
		r.location, r.status, r.request_date, COALESCE(t.title, ''), COALESCE(t.user_id, 0)
	FROM traderequests r
	LEFT JOIN tradebooks t ON t.trade_book_id = r.trade_book_id`

func scanRequest(row rowScanner) (entity.TradeRequest, error) {
	var req entity.TradeRequest
	err := row.Scan(&req.ID, &req.TradeBookID, &req.RequesterID, &req.OfferedBookName, &req.Description,
		&req.BookImage, &req.Location, &req.Status, &req.RequestDate, &req.TradeBookTitle, &req.OwnerID)
	return req, err
}

func (r *tradeRepository) FindRequest(ctx context.Context, id int64) (*entity.TradeRequest, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, selectRequests+" WHERE r.request_id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.NotFound, "trade request %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trade request %d: %w", id, err)
	}
	return &req, nil
}

func (r *tradeRepository) queryRequests(ctx context.Context, where string, arg int64) ([]entity.TradeRequest, error) {
	rows, err := r.db.QueryContext(ctx, selectRequests+" WHERE "+where+" = $1 ORDER BY r.request_id DESC", arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade requests: %w", err)
	}
	defer rows.Close()

	var out []entity.TradeRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade request rows: %w", err)
	}
	return out, nil
}

func (r *tradeRepository) FindRequestsByTradeBook(ctx context.Context, tradeBookID int64) ([]entity.TradeRequest, error) {
	return r.queryRequests(ctx, "r.trade_book_id", tradeBookID)
}

func (r *tradeRepository) FindRequestsByRequester(ctx context.Context, requesterID int64) ([]entity.TradeRequest, error) {
	return r.queryRequests(ctx, "r.user_id", requesterID)
}

func (r *tradeRepository) CreateRequest(ctx context.Context, req *entity.TradeRequest, book *entity.TradeBook) (*entity.TradeRequested, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO traderequests (trade_book_id, user_id, book_name, description, book_image, location, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING request_id, status, request_date`,
		req.TradeBookID, req.RequesterID, req.OfferedBookName, req.Description, req.BookImage, req.Location, entity.TradePending,
	).Scan(&req.ID, &req.Status, &req.RequestDate)
	if isUniqueViolation(err) {
		return nil, apperr.Newf(apperr.Conflict, "user %d already requested trade book %d", req.RequesterID, req.TradeBookID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert trade request: %w", err)
	}

	event := entity.TradeRequested{
		RequestID:       req.ID,
		TradeBookID:     book.ID,
		TradeBookTitle:  book.Title,
		OwnerID:         book.OwnerID,
		RequesterID:     req.RequesterID,
		OfferedBookName: req.OfferedBookName,
		Location:        req.Location,
		RequestedAt:     req.RequestDate,
	}
	if err := insertOutbox(ctx, tx, entity.TopicTradesRequested, req.ID, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &event, nil
}

func (r *tradeRepository) ResolveRequest(ctx context.Context, req *entity.TradeRequest, book *entity.TradeBook, to entity.TradeStatus) (entity.Event, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE traderequests SET status = $1 WHERE request_id = $2 AND status = $3",
		to, req.ID, entity.TradePending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update trade request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.Newf(apperr.InvalidTransition, "trade request %d is no longer pending", req.ID)
	}

	resolution := entity.TradeResolution{
		RequestID:       req.ID,
		TradeBookTitle:  book.Title,
		OwnerID:         book.OwnerID,
		RequesterID:     req.RequesterID,
		OfferedBookName: req.OfferedBookName,
		ResolvedAt:      time.Now(),
	}
	var event entity.Event
	switch to {
	case entity.TradeAccepted:
		event = entity.TradeRequestAccepted{TradeResolution: resolution}
	case entity.TradeDeclined:
		event = entity.TradeRequestDeclined{TradeResolution: resolution}
	default:
		return nil, fmt.Errorf("unsupported trade status %q", to)
	}

	if err := insertOutbox(ctx, tx, entity.TopicTradesResolved, req.ID, event); err != nil {
		return nil, err
	}
	if to == entity.TradeAccepted {
		if _, err := tx.ExecContext(ctx, "DELETE FROM tradebooks WHERE trade_book_id = $1", book.ID); err != nil {
			return nil, fmt.Errorf("failed to remove trade book %d: %w", book.ID, err)
		}
		if err := declineSiblings(ctx, tx, req.ID, book, resolution.ResolvedAt); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	req.Status = to
	return event, nil
}

// declineSiblings declines the other pending requests on an accepted listing
// and records a TradeRequestDeclined for each.
func declineSiblings(ctx context.Context, tx *sql.Tx, acceptedID int64, book *entity.TradeBook, at time.Time) error {
	rows, err := tx.QueryContext(ctx, `
		UPDATE traderequests SET status = $1
		WHERE trade_book_id = $2 AND status = $3 AND request_id <> $4
		RETURNING request_id, user_id, book_name`,
		entity.TradeDeclined, book.ID, entity.TradePending, acceptedID,
	)
	if err != nil {
		return fmt.Errorf("failed to decline sibling trade requests: %w", err)
	}
	var declined []entity.TradeResolution
	for rows.Next() {
		res := entity.TradeResolution{TradeBookTitle: book.Title, OwnerID: book.OwnerID, ResolvedAt: at}
		if err := rows.Scan(&res.RequestID, &res.RequesterID, &res.OfferedBookName); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan declined trade request: %w", err)
		}
		declined = append(declined, res)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating declined trade requests: %w", err)
	}

	sort.Slice(declined, func(i, j int) bool { return declined[i].RequestID < declined[j].RequestID })
	for _, res := range declined {
		if err := insertOutbox(ctx, tx, entity.TopicTradesResolved, res.RequestID, entity.TradeRequestDeclined{TradeResolution: res}); err != nil {
			return err
		}
	}
	return nil
}
