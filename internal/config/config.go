// Package config loads service configuration from built-in defaults, an
// optional YAML file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Messaging MessagingConfig `koanf:"messaging"`
	Redis     RedisConfig     `koanf:"redis"`
	SMTP      SMTPConfig      `koanf:"smtp"`
	Auth      AuthConfig      `koanf:"auth"`
	HTTP      HTTPConfig      `koanf:"http"`
	Outbox    OutboxConfig    `koanf:"outbox"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	// Addr wins over Port when both are set.
	Addr              string        `koanf:"addr"`
	Port              int           `koanf:"port"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

func (s ServerConfig) ListenAddr() string {
	if s.Addr != "" {
		return s.Addr
	}
	return ":" + strconv.Itoa(s.Port)
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type DatabaseConfig struct {
	Driver          string        `koanf:"driver"`
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	// Seed loads the sample catalog on startup.
	Seed bool `koanf:"seed"`
}

const (
	MessagingKafka          = "kafka"
	MessagingWatermillKafka = "watermill-kafka"
	MessagingGoChannel      = "gochannel"
)

type MessagingConfig struct {
	Driver  string   `koanf:"driver"`
	Brokers []string `koanf:"brokers"`
	GroupID string   `koanf:"group_id"`
}

type RedisConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Addr           string        `koanf:"addr"`
	Password       string        `koanf:"password"`
	DB             int           `koanf:"db"`
	IdempotencyTTL time.Duration `koanf:"idempotency_ttl"`
}

type SMTPConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Host          string        `koanf:"host"`
	Port          int           `koanf:"port"`
	Username      string        `koanf:"username"`
	Password      string        `koanf:"password"`
	From          string        `koanf:"from"`
	OperatorEmail string        `koanf:"operator_email"`
	UseTLS        bool          `koanf:"use_tls"`
	Timeout       time.Duration `koanf:"timeout"`
}

type AuthConfig struct {
	Enabled   bool   `koanf:"enabled"`
	JWTSecret string `koanf:"jwt_secret"`
	Issuer    string `koanf:"issuer"`
}

type HTTPConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

type OutboxConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	BatchSize    int           `koanf:"batch_size"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Database.Driver))
	}

	switch c.Messaging.Driver {
	case MessagingKafka, MessagingWatermillKafka:
		if len(c.Messaging.Brokers) == 0 {
			errs = append(errs, fmt.Errorf("messaging.brokers is required for the %s driver", c.Messaging.Driver))
		}
	case MessagingGoChannel:
	default:
		errs = append(errs, fmt.Errorf("messaging.driver must be one of %q, %q, %q, got %q",
			MessagingKafka, MessagingWatermillKafka, MessagingGoChannel, c.Messaging.Driver))
	}
	if c.Messaging.GroupID == "" {
		errs = append(errs, errors.New("messaging.group_id is required"))
	}

	if c.Server.Addr == "" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.SMTP.Enabled && (c.SMTP.Host == "" || c.SMTP.From == "") {
		errs = append(errs, errors.New("smtp.host and smtp.from are required when smtp is enabled"))
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required when auth is enabled"))
	}

	for name, d := range map[string]time.Duration{
		"outbox.poll_interval":   c.Outbox.PollInterval,
		"http.rate_limit_window": c.HTTP.RateLimitWindow,
		"redis.idempotency_ttl":  c.Redis.IdempotencyTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Outbox.BatchSize <= 0 {
		errs = append(errs, errors.New("outbox.batch_size must be positive"))
	}
	if c.HTTP.RateLimitRequests < 0 {
		errs = append(errs, errors.New("http.rate_limit_requests cannot be negative"))
	}

	return errors.Join(errs...)
}
