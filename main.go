package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/egannguyen/go-bookstore/internal/auth"
	"github.com/egannguyen/go-bookstore/internal/config"
	httpdelivery "github.com/egannguyen/go-bookstore/internal/delivery/http"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/idempotency"
	"github.com/egannguyen/go-bookstore/internal/logging"
	"github.com/egannguyen/go-bookstore/internal/messaging"
	"github.com/egannguyen/go-bookstore/internal/messaging/kafka"
	"github.com/egannguyen/go-bookstore/internal/messaging/router"
	"github.com/egannguyen/go-bookstore/internal/metrics"
	"github.com/egannguyen/go-bookstore/internal/notification"
	"github.com/egannguyen/go-bookstore/internal/outbox"
	"github.com/egannguyen/go-bookstore/internal/repository"
	"github.com/egannguyen/go-bookstore/internal/repository/memory"
	"github.com/egannguyen/go-bookstore/internal/repository/postgres"
	"github.com/egannguyen/go-bookstore/internal/service"
	"github.com/egannguyen/go-bookstore/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const tokenTTL = 24 * time.Hour

// repositories is the storage the services run on, whichever driver backs it.
type repositories struct {
	users     repository.UserRepository
	books     repository.BookRepository
	orders    repository.OrderRepository
	trades    repository.TradeRepository
	outbox    repository.OutboxRepository
	analytics repository.AnalyticsRepository
	ping      func(ctx context.Context) error
	close     func() error
}

// broker publishes and consumes on the configured transport.
type broker interface {
	messaging.Publisher
	messaging.Subscriber
}

func main() {
	if err := run(); err != nil {
		slog.Error("Bookstore exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Init(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Database ---
	repos, err := openRepositories(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer repos.close()

	if cfg.Database.Seed {
		if err := repos.books.Seed(ctx, repository.SampleBooks()); err != nil {
			return fmt.Errorf("failed to seed books: %w", err)
		}
	}

	// --- Messaging ---
	bus, err := openBroker(cfg.Messaging, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	// --- Idempotency ---
	var idem idempotency.Store = idempotency.NewMemoryStore(cfg.Redis.IdempotencyTTL)
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		idem = idempotency.NewRedisStore(client, cfg.Redis.IdempotencyTTL)
		slog.Info("Redis connected", "addr", cfg.Redis.Addr)
	}

	// --- Notifications ---
	var mailer notification.Mailer = notification.LogMailer{}
	if cfg.SMTP.Enabled {
		mailer = notification.NewSMTPMailer(notification.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			UseTLS:   cfg.SMTP.UseTLS,
			Timeout:  cfg.SMTP.Timeout,
		})
	}
	notifier := notification.NewNotifier(mailer, cfg.SMTP.OperatorEmail, m)

	// --- Auth ---
	var authManager *auth.Manager
	if cfg.Auth.Enabled {
		authManager, err = auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, tokenTTL)
		if err != nil {
			return err
		}
	}

	// --- HTTP API ---
	handler := httpdelivery.NewHandler(httpdelivery.Services{
		Checkout:  service.NewCheckoutService(repos.users, repos.books, repos.orders),
		Orders:    service.NewOrderService(repos.orders),
		Catalog:   service.NewCatalogService(repos.books),
		Users:     service.NewUserService(repos.users),
		Trades:    service.NewTradeService(repos.users, repos.trades),
		Analytics: service.NewAnalyticsService(repos.analytics),
	}, httpdelivery.Options{
		CORSOrigins:       cfg.HTTP.CORSOrigins,
		RateLimitRequests: cfg.HTTP.RateLimitRequests,
		RateLimitWindow:   cfg.HTTP.RateLimitWindow,
		Auth:              authManager,
		Idempotency:       idem,
		Metrics:           m,
		Health:            repos.ping,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr(),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	// --- Start everything ---
	tree := supervisor.NewTree(logger, supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddMessagingService(outbox.NewRelay(repos.outbox, bus, m, outbox.Config{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
	}))
	tree.AddMessagingService(notification.NewWorker(bus, notifier, repos.users, cfg.Messaging.GroupID))
	tree.AddAPIService(supervisor.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	slog.Info("Bookstore starting",
		"addr", httpServer.Addr,
		"database", cfg.Database.Driver,
		"messaging", cfg.Messaging.Driver,
		"auth", cfg.Auth.Enabled,
	)
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor stopped: %w", err)
	}
	slog.Info("Shutting down...")
	return nil
}

func openRepositories(ctx context.Context, cfg config.DatabaseConfig) (*repositories, error) {
	if cfg.Driver == config.DriverMemory {
		s := memory.New()
		s.PutUser(entity.User{ID: 1, FirstName: "Store", LastName: "Admin", Email: "admin@bookstore.local", Role: entity.RoleAdmin})
		s.PutUser(entity.User{ID: 2, FirstName: "Demo", LastName: "Reader", Email: "reader@bookstore.local", Role: entity.RoleClient})
		slog.Warn("Using in-memory storage; data is lost on restart")
		return &repositories{
			users:     s.Users(),
			books:     s.Books(),
			orders:    s.Orders(),
			trades:    s.Trades(),
			outbox:    s.Outbox(),
			analytics: s.Analytics(),
			ping:      func(context.Context) error { return nil },
			close:     func() error { return nil },
		}, nil
	}

	db, err := postgres.Open(ctx, postgres.Options{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	return postgresRepositories(db), nil
}

func postgresRepositories(db *sql.DB) *repositories {
	return &repositories{
		users:     postgres.NewUserRepository(db),
		books:     postgres.NewBookRepository(db),
		orders:    postgres.NewOrderRepository(db),
		trades:    postgres.NewTradeRepository(db),
		outbox:    postgres.NewOutboxRepository(db),
		analytics: postgres.NewAnalyticsRepository(db),
		ping:      db.PingContext,
		close:     db.Close,
	}
}

func openBroker(cfg config.MessagingConfig, logger *slog.Logger) (broker, error) {
	wmLogger := watermill.NewSlogLogger(logger)
	switch cfg.Driver {
	case config.MessagingWatermillKafka:
		return router.NewKafka(cfg.Brokers, router.DefaultConfig(), wmLogger)
	case config.MessagingGoChannel:
		slog.Warn("Using in-process gochannel broker; events are not durable")
		return router.NewGoChannel(router.DefaultConfig(), wmLogger), nil
	default:
		return kafka.NewBroker(cfg.Brokers), nil
	}
}
