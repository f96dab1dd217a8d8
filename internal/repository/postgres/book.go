package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/repository"
)

type bookRepository struct {
	db *sql.DB
}

// NewBookRepository creates a new BookRepository backed by Postgres.
func NewBookRepository(db *sql.DB) repository.BookRepository {
	return &bookRepository{db: db}
}

const selectBooks = `
	SELECT b.sale_book_id, b.title, COALESCE(b.genre_id, 0), COALESCE(g.genre_name, ''), b.author_name,
		b.price, b.quantity, b.description, b.book_image, b.discount, b.status, b.post_date
	FROM salebooks b
	LEFT JOIN genres g ON g.genre_id = b.genre_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (entity.SaleBook, error) {
	var b entity.SaleBook
	err := row.Scan(&b.ID, &b.Title, &b.GenreID, &b.GenreName, &b.AuthorName,
		&b.Price, &b.Quantity, &b.Description, &b.BookImage, &b.Discount, &b.Status, &b.PostDate)
	return b, err
}

func (r *bookRepository) query(ctx context.Context, query string, args ...any) ([]entity.SaleBook, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var books []entity.SaleBook
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating book rows: %w", err)
	}
	return books, nil
}

func (r *bookRepository) FindAll(ctx context.Context) ([]entity.SaleBook, error) {
	return r.query(ctx, selectBooks+" ORDER BY b.sale_book_id")
}

func (r *bookRepository) FindLatest(ctx context.Context, limit int) ([]entity.SaleBook, error) {
	return r.query(ctx, selectBooks+" ORDER BY b.post_date DESC, b.sale_book_id DESC LIMIT $1", limit)
}

func (r *bookRepository) FindByID(ctx context.Context, id int64) (*entity.SaleBook, error) {
	b, err := scanBook(r.db.QueryRowContext(ctx, selectBooks+" WHERE b.sale_book_id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ForItem(apperr.NotFound, id, "book %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query book %d: %w", id, err)
	}
	return &b, nil
}

func (r *bookRepository) Update(ctx context.Context, id int64, patch repository.Patch) error {
	query, args, err := buildUpdate("salebooks", "sale_book_id", id, patch, repository.BookColumns)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update book %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ForItem(apperr.NotFound, id, "book %d not found", id)
	}
	return nil
}

func (r *bookRepository) Seed(ctx context.Context, books []entity.SaleBook) error {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM salebooks").Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count books: %w", err)
	}
	if count > 0 {
		return nil // already seeded
	}

	for _, b := range books {
		var genreID any
		if b.GenreID != 0 {
			genreID = b.GenreID
		}
		_, err := r.db.ExecContext(ctx,
			"INSERT INTO salebooks (title, genre_id, author_name, price, quantity, description, book_image, discount) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
			b.Title, genreID, b.AuthorName, b.Price, b.Quantity, b.Description, b.BookImage, b.Discount,
		)
		if err != nil {
			return fmt.Errorf("failed to seed book %s: %w", b.Title, err)
		}
	}
	return nil
}
