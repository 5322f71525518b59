// Package redis implements the position store on top of a single Redis
// instance using go-redis/v9. Records are JSON blobs under one key per
// position; secondary indexes are Redis sets. Multi-key writes go through
// Lua scripts so a record and its index entries always change together.
package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/chartsayer/positionbot/internal/domain"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client wraps a go-redis Client with the typed key-value operations the
// repository needs: JSON get/set, delete, set membership, and key scans.
// It carries no business logic.
type Client struct {
	rdb *redis.Client
}

// New creates a Client, pings it to verify connectivity, and returns the
// wrapper. It returns an error if the connection cannot be established.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	rdb := redis.NewClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, storeErr("ping", err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetJSON reads the value at key and unmarshals it into dest. It returns
// domain.ErrNotFound when the key does not exist.
func (c *Client) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: get %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return storeErr("get "+key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("redis: unmarshal %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals v and writes it at key with no expiry.
func (c *Client) SetJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: marshal %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return storeErr("set "+key, err)
	}
	return nil
}

// Delete removes the given keys.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return storeErr("del", err)
	}
	return nil
}

// SetMembers returns all members of the set at key. A missing key is an
// empty set.
func (c *Client) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, storeErr("smembers "+key, err)
	}
	return members, nil
}

// MGetJSON fetches the values at keys in one round trip and unmarshals each
// into a T. Keys that do not exist are omitted from the result.
func MGetJSON[T any](ctx context.Context, c *Client, keys []string) ([]T, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storeErr("mget", err)
	}

	out := make([]T, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(s), &item); err != nil {
			return nil, fmt.Errorf("redis: unmarshal %s: %w", keys[i], err)
		}
		out = append(out, item)
	}
	return out, nil
}

// ScanKeys iterates the keyspace for keys matching pattern. Used only by
// administrative tooling; normal operations go through the indexes.
func (c *Client) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, storeErr("scan "+pattern, err)
	}
	return keys, nil
}

// Underlying returns the raw *redis.Client for scripted operations.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}

// errUnexpectedReply marks a script reply that does not match its contract.
var errUnexpectedReply = errors.New("unexpected script reply")

// storeErr wraps a driver error so callers can match both the operation
// context and domain.ErrStoreUnavailable with errors.Is.
func storeErr(op string, err error) error {
	return fmt.Errorf("redis: %s: %w", op, errors.Join(domain.ErrStoreUnavailable, err))
}
