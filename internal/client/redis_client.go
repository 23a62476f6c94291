package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"otp-agent/internal/config"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrBadValue    = errors.New("stored value does not decode")
)

type RedisClient struct {
	Client *redis.Client
	logger *zap.Logger
}

// redisOptions turns the URL plus explicit overrides into client options.
// Values in the URL win over REDIS_PASSWORD; REDIS_DB and REDIS_POOL_SIZE
// win over the URL.
func redisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if opts.Password == "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.ConnMaxIdleTime = 5 * time.Minute

	if strings.HasPrefix(cfg.URL, "rediss://") && opts.TLSConfig != nil {
		opts.TLSConfig.MinVersion = tls.VersionTLS12
	}
	return opts, nil
}

// NewRedisClient connects to cfg.Redis.URL (redis:// or rediss://) and pings it.
func NewRedisClient(cfg *config.Config, logger *zap.Logger) (*RedisClient, error) {
	opts, err := redisOptions(cfg.Redis)
	if err != nil {
		return nil, err
	}

	rc := NewRedisClientFrom(redis.NewClient(opts), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.HealthCheck(ctx); err != nil {
		_ = rc.Client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis client initialized",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.Int("pool_size", opts.PoolSize),
		zap.Bool("tls", opts.TLSConfig != nil),
	)
	return rc, nil
}

// NewRedisClientFrom wraps an existing go-redis client.
func NewRedisClientFrom(c *redis.Client, logger *zap.Logger) *RedisClient {
	return &RedisClient{Client: c, logger: logger}
}

func (r *RedisClient) Close() error {
	if r.Client == nil {
		return nil
	}
	if err := r.Client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		r.logger.Error("failed to close Redis client", zap.Error(err))
		return err
	}
	return nil
}

func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if err := r.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.Client.Set(ctx, key, value, expiration).Err()
}

// Get returns ErrKeyNotFound for a missing key.
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	val, err := r.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return val, err
}

func (r *RedisClient) Del(ctx context.Context, keys ...string) error {
	return r.Client.Del(ctx, keys...).Err()
}

// SetJSON stores value encoded as JSON. Zero expiration keeps the key.
func (r *RedisClient) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return r.Set(ctx, key, payload, expiration)
}

// GetJSON decodes the value at key into out. It returns ErrKeyNotFound for
// a missing key.
func (r *RedisClient) GetJSON(ctx context.Context, key string, out interface{}) error {
	raw, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadValue, key, err)
	}
	return nil
}
