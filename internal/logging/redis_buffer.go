package logging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// enqueueScript appends a record and trims the list to the newest max_size entries.
var enqueueScript = redis.NewScript(`
	local key = KEYS[1]
	local max_size = tonumber(ARGV[2])

	redis.call('RPUSH', key, ARGV[1])

	local len = redis.call('LLEN', key)
	if len > max_size then
		redis.call('LTRIM', key, len - max_size, -1)
	end

	return len
`)

// dequeueScript pops up to count records from the head atomically.
var dequeueScript = redis.NewScript(`
	local key = KEYS[1]
	local count = tonumber(ARGV[1])

	local records = redis.call('LRANGE', key, 0, count - 1)
	if #records > 0 then
		redis.call('LTRIM', key, #records, -1)
	end

	return records
`)

// RedisBuffer is a capped Redis list of chat records. It implements Sink.
type RedisBuffer struct {
	client    redis.UniversalClient
	queueKey  string
	maxSize   int64 // 0 = unlimited
	batchSize int
}

// RedisBufferConfig holds configuration for the Redis buffer
type RedisBufferConfig struct {
	QueueKey  string // Redis list key
	MaxSize   int64  // older entries are dropped beyond this size
	BatchSize int    // default count for Dequeue and Peek
}

// DefaultRedisBufferConfig returns default configuration
func DefaultRedisBufferConfig() RedisBufferConfig {
	return RedisBufferConfig{
		QueueKey:  "chat:records",
		MaxSize:   10000,
		BatchSize: 100,
	}
}

// NewRedisBuffer creates a new Redis-backed record buffer
func NewRedisBuffer(client redis.UniversalClient, cfg RedisBufferConfig) *RedisBuffer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &RedisBuffer{
		client:    client,
		queueKey:  cfg.QueueKey,
		maxSize:   cfg.MaxSize,
		batchSize: cfg.BatchSize,
	}
}

// Enqueue appends a record to the list
func (rb *RedisBuffer) Enqueue(ctx context.Context, record *ChatRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal chat record: %w", err)
	}

	if rb.maxSize > 0 {
		err = enqueueScript.Run(ctx, rb.client, []string{rb.queueKey}, data, rb.maxSize).Err()
	} else {
		err = rb.client.RPush(ctx, rb.queueKey, data).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue chat record: %w", err)
	}
	return nil
}

// Dequeue removes and returns up to count of the oldest records
func (rb *RedisBuffer) Dequeue(ctx context.Context, count int) ([]*ChatRecord, error) {
	if count <= 0 {
		count = rb.batchSize
	}

	result, err := dequeueScript.Run(ctx, rb.client, []string{rb.queueKey}, count).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}
	return decodeRecords(result)
}

// Peek returns up to count of the oldest records without removing them
func (rb *RedisBuffer) Peek(ctx context.Context, count int) ([]*ChatRecord, error) {
	if count <= 0 {
		count = rb.batchSize
	}

	result, err := rb.client.LRange(ctx, rb.queueKey, 0, int64(count-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to peek: %w", err)
	}
	return decodeRecords(result)
}

func decodeRecords(raw []string) ([]*ChatRecord, error) {
	records := make([]*ChatRecord, 0, len(raw))
	for i, data := range raw {
		var record ChatRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %d: %w", i, err)
		}
		records = append(records, &record)
	}
	return records, nil
}

// Size returns the current list length
func (rb *RedisBuffer) Size(ctx context.Context) (int64, error) {
	return rb.client.LLen(ctx, rb.queueKey).Result()
}

// Clear removes all records
func (rb *RedisBuffer) Clear(ctx context.Context) error {
	return rb.client.Del(ctx, rb.queueKey).Err()
}
