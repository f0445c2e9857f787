package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config carries the connection settings the engine exposes through its
// environment. Zero values fall back to defaults sized for the booking-lock
// and pub/sub traffic this service generates.
type Config struct {
	Addr     string
	Username string
	Password string
	PoolSize int
	Timeout  time.Duration // per-command read/write timeout
}

func (c Config) options() *redis.Options {
	opts := &redis.Options{
		Addr:         c.Addr,
		Username:     c.Username,
		Password:     c.Password,
		PoolSize:     c.PoolSize,
		ReadTimeout:  c.Timeout,
		WriteTimeout: c.Timeout,
		MinIdleConns: 1,
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	if c.Timeout <= 0 {
		opts.ReadTimeout = 2 * time.Second
		opts.WriteTimeout = 2 * time.Second
	}
	return opts
}

// NewClient connects and verifies the connection before handing it out, so
// callers fail at boot rather than on the first booking.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(cfg.options())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
