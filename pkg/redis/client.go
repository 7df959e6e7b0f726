package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/watchpoints/points-engine/pkg/config"
	"github.com/watchpoints/points-engine/pkg/logger"
)

const (
	defaultNamespace  = "pts"
	idempotencyPrefix = "idempotency"
	walletPrefix      = "wallet"
	tierPrefix        = "tier"
	dedupePrefix      = "dedupe"
	lockPrefix        = "lock"
	queuePrefix       = "queue"
	rateLimitPrefix   = "rl"
)

// ReconcileQueue holds user ids whose wallet projection may be stale.
const ReconcileQueue = "reconcile"

// Nil is returned by Get when the key does not exist.
var Nil = redis.Nil

// Cmdable is the subset of go-redis commands the engine relies on.
type Cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
	SAdd(context.Context, string, ...any) *redis.IntCmd
	SPopN(context.Context, string, int64) *redis.StringSliceCmd
}

// Client wraps the redis connection helpers needed by the engine.
type Client struct {
	store     Cmdable
	raw       *redis.Client
	namespace string
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// IdempotencyStore exposes minimal operations used by idempotency helpers.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Debug(ctx, "redis connection established")
	}
	return &Client{store: raw, raw: raw, namespace: cfg.KeyPrefix}, nil
}

// NewFromCmdable wraps an existing command set, typically an in-memory double.
func NewFromCmdable(store Cmdable, namespace string) *Client {
	return &Client{store: store, namespace: namespace}
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

var errNotInitialized = errors.New("redis client not initialized")

// Set stores a string value with an optional TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.store == nil {
		return errNotInitialized
	}
	return c.store.Set(ctx, key, value, ttl).Err()
}

// Get returns a string value stored at key, or Nil when absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.store == nil {
		return "", errNotInitialized
	}
	return c.store.Get(ctx, key).Result()
}

// SetNX sets a value only if the key does not exist yet.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c == nil || c.store == nil {
		return false, errNotInitialized
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

// Del removes the provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c == nil || c.store == nil {
		return errNotInitialized
	}
	return c.store.Del(ctx, keys...).Err()
}

// IncrWithTTL increments key and sets ttl on the first increment.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if c == nil || c.store == nil {
		return 0, errNotInitialized
	}
	count, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl > 0 && count == 1 {
		if err := c.store.Expire(ctx, key, ttl).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// Enqueue adds members to a set used as a work queue.
func (c *Client) Enqueue(ctx context.Context, queue string, members ...string) error {
	if c == nil || c.store == nil {
		return errNotInitialized
	}
	if len(members) == 0 {
		return nil
	}
	values := make([]any, 0, len(members))
	for _, m := range members {
		values = append(values, m)
	}
	return c.store.SAdd(ctx, c.QueueKey(queue), values...).Err()
}

// Dequeue pops up to n members from the queue set.
func (c *Client) Dequeue(ctx context.Context, queue string, n int64) ([]string, error) {
	if c == nil || c.store == nil {
		return nil, errNotInitialized
	}
	members, err := c.store.SPopN(ctx, c.QueueKey(queue), n).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return members, err
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.store == nil {
		return errNotInitialized
	}
	return c.store.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// IdempotencyKey returns a namespaced key for idempotency storage.
func (c *Client) IdempotencyKey(scope, id string) string {
	return c.buildKey(idempotencyPrefix, scope, id)
}

// WalletKey returns the cache key for a user's wallet projection.
func (c *Client) WalletKey(userID string) string {
	return c.buildKey(walletPrefix, userID)
}

// TierKey returns the cache key for a user's verification tier.
func (c *Client) TierKey(userID string) string {
	return c.buildKey(tierPrefix, userID)
}

// DedupeKey returns the key guarding a short-lived dedupe window.
func (c *Client) DedupeKey(scope, userID, token string) string {
	return c.buildKey(dedupePrefix, scope, userID, token)
}

// LockKey returns the key of a named distributed lock.
func (c *Client) LockKey(name string) string {
	return c.buildKey(lockPrefix, name)
}

// RateLimitKey returns the key of a fixed-window rate limit counter.
func (c *Client) RateLimitKey(scope string) string {
	return c.buildKey(rateLimitPrefix, scope)
}

// QueueKey returns the key of a named work queue set.
func (c *Client) QueueKey(name string) string {
	return c.buildKey(queuePrefix, name)
}

func (c *Client) buildKey(parts ...string) string {
	ns := defaultNamespace
	if c != nil && strings.TrimSpace(c.namespace) != "" {
		ns = strings.TrimSpace(c.namespace)
	}
	clean := []string{ns}
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			clean = append(clean, part)
		}
	}
	return strings.Join(clean, ":")
}
