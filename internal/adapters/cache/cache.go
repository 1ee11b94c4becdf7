// Package cache stores generated calibration guidance per job.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/okian/talentloop/internal/domain/calibration"
)

const keyPrefix = "talentloop:calibration:"

// ErrCache wraps backend failures.
var ErrCache = errors.New("context cache failure")

// LRU is a process-local cache with a size bound and per-entry TTL.
type LRU struct {
	entries *expirable.LRU[string, string]
}

var _ calibration.Cache = (*LRU)(nil)

// NewLRU creates a cache holding at most size jobs for ttl each.
func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{entries: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (c *LRU) Get(_ context.Context, jobID string) (string, bool, error) {
	text, ok := c.entries.Get(jobID)
	return text, ok, nil
}

func (c *LRU) Set(_ context.Context, jobID, text string) error {
	c.entries.Add(jobID, text)
	return nil
}

func (c *LRU) Invalidate(_ context.Context, jobID string) error {
	c.entries.Remove(jobID)
	return nil
}

// Len returns the number of live entries.
func (c *LRU) Len() int {
	return c.entries.Len()
}

// Redis shares guidance between service instances.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ calibration.Cache = (*Redis)(nil)

// NewRedis creates a Redis-backed cache; entries expire after ttl.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrCache, addr, err)
	}
	return NewRedis(client, ttl), nil
}

func key(jobID string) string {
	return keyPrefix + jobID
}

func (c *Redis) Get(ctx context.Context, jobID string) (string, bool, error) {
	text, err := c.client.Get(ctx, key(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get: %w", ErrCache, err)
	}
	return text, true, nil
}

func (c *Redis) Set(ctx context.Context, jobID, text string) error {
	if err := c.client.Set(ctx, key(jobID), text, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %w", ErrCache, err)
	}
	return nil
}

func (c *Redis) Invalidate(ctx context.Context, jobID string) error {
	if err := c.client.Del(ctx, key(jobID)).Err(); err != nil {
		return fmt.Errorf("%w: del: %w", ErrCache, err)
	}
	return nil
}

// Close releases the client.
func (c *Redis) Close() error {
	return c.client.Close()
}
