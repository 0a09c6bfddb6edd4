package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/NeuralTrust/TrustGuard/pkg/infra/breaker"
	"github.com/go-redis/redis/v8"
)

var ErrNotFound = errors.New("key not found")

// Store is the key/value collaborator used to persist block entries across
// restarts.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithExpiry(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	KeysMatching(ctx context.Context, pattern string) ([]string, error)
}

type Config struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	TLS             bool          `mapstructure:"tls"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
}

// Cache is the redis implementation of Store. Every call is bounded by
// Timeout and goes through a circuit breaker so an outage fails fast.
type Cache struct {
	client  *redis.Client
	cb      breaker.CircuitBreaker
	timeout time.Duration
}

func NewCache(config Config, opts ...breaker.Option) *Cache {
	options := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	}
	if config.TLS {
		options.TLSConfig = &tls.Config{
			InsecureSkipVerify: true, // #nosec G402
		}
	}
	return NewCacheWithClient(redis.NewClient(options), config, opts...)
}

func NewCacheWithClient(client *redis.Client, config Config, opts ...breaker.Option) *Cache {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	breakerTimeout := config.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}
	failures := config.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	return &Cache{
		client:  client,
		cb:      breaker.NewCircuitBreaker("redis", breakerTimeout, failures, opts...),
		timeout: timeout,
	}
}

func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	var value string
	var missing bool
	err := c.cb.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		v, err := c.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			missing = true
			return nil
		}
		value = v
		return err
	})
	if err != nil {
		return "", err
	}
	if missing {
		return "", ErrNotFound
	}
	return value, nil
}

// SetWithExpiry stores value under key. A zero ttl keeps the key until it is
// deleted.
func (c *Cache) SetWithExpiry(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.cb.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.client.Set(ctx, key, value, ttl).Err()
	})
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.cb.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.client.Del(ctx, key).Err()
	})
}

func (c *Cache) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	var result []string
	err := c.cb.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		var cursor uint64
		for {
			keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				return fmt.Errorf("error scanning keys: %w", err)
			}
			result = append(result, keys...)
			cursor = nextCursor
			if cursor == 0 {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Cache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
