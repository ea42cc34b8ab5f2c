// Package kvstore provides a Redis implementation of the core.EphemeralStore interface.
package kvstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrAddrEmpty indicates that no Redis address was configured.
var ErrAddrEmpty = errors.New("redis address cannot be empty")

// Options holds the connection settings for Redis.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
	UseTLS   bool
}

// RedisStore implements core.EphemeralStore on top of a Redis client.
type RedisStore struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, opts Options) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, ErrAddrEmpty
	}

	redisOptions := &redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	}

	if opts.UseTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(redisOptions)

	err := client.Ping(ctx).Err()
	if err != nil {
		closeErr := client.Close()

		return nil, errors.Join(fmt.Errorf("failed to ping redis at %s: %w", opts.Addr, err), closeErr)
	}

	return NewWithClient(client), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the value stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to get key '%s': %w", key, err)
	}

	return value, true, nil
}

// SetIfAbsent stores value under key with a TTL, only if key is unset (SET NX EX).
func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	stored, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set key '%s': %w", key, err)
	}

	return stored, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	err := s.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}
