package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ClientOption configures Open.
type ClientOption func(*clientConfig)

type clientConfig struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	pingTimeout time.Duration
}

// WithPool sets max open and idle connections.
func WithPool(maxOpen, maxIdle int) ClientOption {
	return func(c *clientConfig) {
		c.maxOpen = maxOpen
		c.maxIdle = maxIdle
	}
}

// WithPingTimeout bounds the connectivity check done by Open.
func WithPingTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.pingTimeout = d }
}

// Open connects to PostgreSQL through lib/pq and verifies the connection.
func Open(dsn string, opts ...ClientOption) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	cfg := &clientConfig{
		maxOpen:     4,
		maxIdle:     2,
		maxLifetime: 30 * time.Minute,
		pingTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(cfg.maxOpen)
	db.SetMaxIdleConns(cfg.maxIdle)
	db.SetConnMaxLifetime(cfg.maxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}
