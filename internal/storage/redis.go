package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// healthCheckKey is written and read back by Health. It expires on its own.
const healthCheckKey = "chat_gateway:health"

// RedisClient is the connection shared by the chat record buffer and the
// client state store.
type RedisClient struct {
	rdb *redis.Client
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address  string // host:port
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxRetries of -1 disables retries.
	MaxRetries int
}

// DefaultRedisConfig returns the settings used when nothing is configured
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:      "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	}
}

func (c RedisConfig) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Address,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		MaxRetries:   c.MaxRetries,
	}
}

// NewRedisClient connects and pings once so a bad address fails at startup.
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(cfg.options())

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}
	return &RedisClient{rdb: rdb}, nil
}

// Client exposes the connection for the record buffer and RedisKV.
func (r *RedisClient) Client() redis.UniversalClient {
	return r.rdb
}

// Close releases the connection pool
func (r *RedisClient) Close() error {
	return r.rdb.Close()
}

// Health writes a random token and reads it back. A ping alone does not
// catch a replica that has gone read-only.
func (r *RedisClient) Health(ctx context.Context) error {
	token := uuid.NewString()
	if err := r.rdb.Set(ctx, healthCheckKey, token, 10*time.Second).Err(); err != nil {
		return fmt.Errorf("redis write failed: %w", err)
	}
	got, err := r.rdb.Get(ctx, healthCheckKey).Result()
	if err != nil {
		return fmt.Errorf("redis read failed: %w", err)
	}
	if got != token {
		return fmt.Errorf("redis returned a stale health token")
	}
	return nil
}

// RedisStats is a snapshot of the connection pool
type RedisStats struct {
	TotalConns uint32 `json:"totalConns"`
	IdleConns  uint32 `json:"idleConns"`
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
}

// GetStats returns current pool statistics
func (r *RedisClient) GetStats() RedisStats {
	s := r.rdb.PoolStats()
	return RedisStats{
		TotalConns: s.TotalConns,
		IdleConns:  s.IdleConns,
		Hits:       s.Hits,
		Misses:     s.Misses,
		Timeouts:   s.Timeouts,
	}
}
