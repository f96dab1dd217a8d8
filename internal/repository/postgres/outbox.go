package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/repository"
)

type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository creates a new OutboxRepository backed by Postgres.
func NewOutboxRepository(db *sql.DB) repository.OutboxRepository {
	return &outboxRepository{db: db}
}

func (s *outboxRepository) FetchPending(ctx context.Context, limit int) ([]entity.OutboxRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, event_id, topic, key, event_type, payload, created_at, sent_at FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending events: %w", err)
	}
	defer rows.Close()

	var records []entity.OutboxRecord
	for rows.Next() {
		var rec entity.OutboxRecord
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan event record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return records, nil
}

func (s *outboxRepository) MarkSent(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE outbox SET sent_at = NOW() WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to mark event %d sent: %w", id, err)
	}
	return nil
}
