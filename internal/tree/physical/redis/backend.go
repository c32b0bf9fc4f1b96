// Package redis provides a Redis-backed state backend.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carvexyz/tree-node/internal/storage"
	"github.com/carvexyz/tree-node/internal/tree/physical"
)

const (
	KeyAddr         = "addr"
	KeyPassword     = "password"
	KeyDB           = "db"
	KeyMaxRetries   = "max_retries"
	KeyDialTimeout  = "dial_timeout"
	KeyReadTimeout  = "read_timeout"
	KeyWriteTimeout = "write_timeout"
	KeyKeyPrefix    = "key_prefix"
)

func init() {
	physical.Register("redis", NewFactory, Defaults)
}

// Defaults returns the default configuration for the Redis backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyAddr:         "localhost:6379",
		KeyPassword:     "",
		KeyDB:           "0",
		KeyMaxRetries:   "3",
		KeyDialTimeout:  "5s",
		KeyReadTimeout:  "3s",
		KeyWriteTimeout: "3s",
		KeyKeyPrefix:    "tree:",
	}
}

// NewFactory creates a new Redis backend from a configuration map.
func NewFactory(_ context.Context, config map[string]string) (physical.Backend, error) {
	addr := storage.GetString(config, KeyAddr, "")
	if addr == "" {
		return nil, storage.NewConfigError("redis", KeyAddr, "cannot be empty")
	}

	db, err := storage.GetInt(config, KeyDB, 0)
	if err != nil {
		return nil, err
	}
	maxRetries, err := storage.GetInt(config, KeyMaxRetries, 3)
	if err != nil {
		return nil, err
	}
	dialTimeout, err := storage.GetDuration(config, KeyDialTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	readTimeout, err := storage.GetDuration(config, KeyReadTimeout, 3*time.Second)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := storage.GetDuration(config, KeyWriteTimeout, 3*time.Second)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     storage.GetString(config, KeyPassword, ""),
		DB:           db,
		MaxRetries:   maxRetries,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, storage.NewConfigErrorWithCause("redis", KeyAddr, "not reachable", err)
	}

	prefix := storage.GetString(config, KeyKeyPrefix, "tree:")
	slog.Info("redis state backend initialized", "addr", addr, "db", db)

	return &Backend{client: client, prefix: prefix}, nil
}

// Backend is a Redis implementation of physical.Backend.
// Each namespace maps to one Redis hash.
type Backend struct {
	client *redis.Client
	prefix string
	closed atomic.Bool
}

func (b *Backend) hashKey(namespace string) string {
	return b.prefix + namespace
}

// Put stores a record.
func (b *Backend) Put(ctx context.Context, namespace, key string, value []byte) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	if err := b.client.HSet(ctx, b.hashKey(namespace), key, value).Err(); err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// PutBatch applies all writes in a single MULTI/EXEC transaction.
func (b *Backend) PutBatch(ctx context.Context, writes []physical.Write) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	pipe := b.client.TxPipeline()
	for _, w := range writes {
		if w.Value == nil {
			pipe.HDel(ctx, b.hashKey(w.Namespace), w.Key)
			continue
		}
		pipe.HSet(ctx, b.hashKey(w.Namespace), w.Key, w.Value)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put batch: %w", err)
	}
	return nil
}

// Get retrieves a record.
func (b *Backend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	val, err := b.client.HGet(ctx, b.hashKey(namespace), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, physical.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Delete removes a record. Idempotent.
func (b *Backend) Delete(ctx context.Context, namespace, key string) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	if err := b.client.HDel(ctx, b.hashKey(namespace), key).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// List returns all records in a namespace.
func (b *Backend) List(ctx context.Context, namespace string) (map[string][]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	raw, err := b.client.HGetAll(ctx, b.hashKey(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	out := make(map[string][]byte, len(raw))
	for k, v := range raw {
		out[k] = []byte(v)
	}
	return out, nil
}

// Close closes the client connection.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.client.Close()
}
