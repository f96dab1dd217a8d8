package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Options configures the connection pool.
type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects, pings and migrates the database.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrateDB(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("Database connected and migrated")
	return db, nil
}

func migrateDB(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			user_id BIGSERIAL PRIMARY KEY,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL UNIQUE,
			phone_number TEXT NOT NULL DEFAULT '',
			floor TEXT NOT NULL DEFAULT '',
			building TEXT NOT NULL DEFAULT '',
			street TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			additional_description TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'client',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS genres (
			genre_id BIGSERIAL PRIMARY KEY,
			genre_name TEXT NOT NULL UNIQUE
		);

		CREATE TABLE IF NOT EXISTS salebooks (
			sale_book_id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			genre_id BIGINT REFERENCES genres(genre_id),
			author_name TEXT NOT NULL DEFAULT '',
			price NUMERIC(10,2) NOT NULL CHECK (price >= 0),
			quantity INT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			description TEXT NOT NULL DEFAULT '',
			book_image TEXT NOT NULL DEFAULT '',
			discount NUMERIC(5,2) NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'available',
			post_date TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS tradebooks (
			trade_book_id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			author_name TEXT NOT NULL DEFAULT '',
			genre_id BIGINT REFERENCES genres(genre_id),
			description TEXT NOT NULL DEFAULT '',
			book_image TEXT NOT NULL DEFAULT '',
			post_date TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS traderequests (
			request_id BIGSERIAL PRIMARY KEY,
			trade_book_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			book_name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			book_image TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			request_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (trade_book_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS orders (
			order_id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			total_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			shipment_method TEXT NOT NULL DEFAULT 'delivery',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS order_items (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL REFERENCES orders(order_id) ON DELETE CASCADE,
			sale_book_id BIGINT NOT NULL,
			title TEXT NOT NULL,
			unit_price NUMERIC(10,2) NOT NULL,
			quantity INT NOT NULL CHECK (quantity > 0),
			total_price NUMERIC(12,2) NOT NULL,
			UNIQUE (order_id, sale_book_id)
		);

		CREATE TABLE IF NOT EXISTS outbox (
			id BIGSERIAL PRIMARY KEY,
			event_id UUID NOT NULL UNIQUE,
			topic TEXT NOT NULL,
			key TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			sent_at TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS outbox_pending_idx ON outbox (id) WHERE sent_at IS NULL;
	`)
	return err
}

// insertOutbox records an event in the same transaction as the change that produced it.
func insertOutbox(ctx context.Context, tx *sql.Tx, topic string, key int64, event entity.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO outbox (event_id, topic, key, event_type, payload) VALUES ($1, $2, $3, $4, $5)",
		uuid.NewString(), topic, strconv.FormatInt(key, 10), event.EventType(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", event.EventType(), err)
	}
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
