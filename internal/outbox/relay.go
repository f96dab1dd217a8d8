package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/egannguyen/go-bookstore/internal/messaging"
	"github.com/egannguyen/go-bookstore/internal/metrics"
	"github.com/egannguyen/go-bookstore/internal/repository"
)

type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

// Relay moves committed outbox records to the broker. Records are published
// in insertion order; a failure stops the batch so later records wait for the
// next poll.
type Relay struct {
	repo    repository.OutboxRepository
	pub     messaging.Publisher
	metrics *metrics.Metrics
	cfg     Config
}

func NewRelay(repo repository.OutboxRepository, pub messaging.Publisher, m *metrics.Metrics, cfg Config) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Relay{repo: repo, pub: pub, metrics: m, cfg: cfg}
}

// Serve polls until ctx is cancelled.
func (r *Relay) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Outbox relay failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch and returns how many records were sent.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	records, err := r.repo.FetchPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	r.metrics.OutboxPending.Set(float64(len(records)))

	sent := 0
	for _, rec := range records {
		err := r.pub.Publish(ctx, rec.Topic, messaging.Message{
			ID:        rec.EventID,
			Key:       rec.Key,
			EventType: rec.EventType,
			Payload:   rec.Payload,
		})
		if err != nil {
			r.metrics.OutboxFailures.Inc()
			return sent, err
		}
		if err := r.repo.MarkSent(ctx, rec.ID); err != nil {
			r.metrics.OutboxFailures.Inc()
			return sent, err
		}
		r.metrics.OutboxPublished.Inc()
		sent++
		slog.Debug("Outbox record relayed", "id", rec.ID, "topic", rec.Topic, "event_type", rec.EventType)
	}
	return sent, nil
}

func (r *Relay) String() string {
	return "outbox-relay"
}
