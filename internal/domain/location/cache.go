package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"shravan-server-go/internal/platform/config"
)

// Cache holds the last resolved location. The chain geolocates the server's
// own public address, so a single entry serves every request.
type Cache interface {
	Get(ctx context.Context) (Result, bool, error)
	Set(ctx context.Context, res Result) error
}

// NewCache builds the cache selected by cfg.Driver. Driver "none" (or "")
// returns a nil Cache.
func NewCache(cfg config.GeoCacheConfig) (Cache, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryCache(ttl), nil
	case "redis":
		return NewRedisCache(cfg.Redis, ttl)
	default:
		return nil, fmt.Errorf("unsupported geolocation cache driver %q", cfg.Driver)
	}
}

type memoryCache struct {
	mu      sync.RWMutex
	entry   Result
	expires time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) Cache {
	return &memoryCache{ttl: ttl, now: time.Now}
}

func (c *memoryCache) Get(context.Context) (Result, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.entry.Available || c.now().After(c.expires) {
		return Result{}, false, nil
	}
	return c.entry, true, nil
}

func (c *memoryCache) Set(_ context.Context, res Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = res
	c.expires = c.now().Add(c.ttl)
	return nil
}

type redisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisCache shares the resolved location between server replicas.
func NewRedisCache(cfg config.RedisConfig, ttl time.Duration) (Cache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "shravan:geo"
	}
	return &redisCache{client: client, key: prefix + ":current", ttl: ttl}, nil
}

func (c *redisCache) Get(ctx context.Context) (Result, bool, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, false, fmt.Errorf("decode cached location: %w", err)
	}
	return res, res.Available, nil
}

func (c *redisCache) Set(ctx context.Context, res Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, data, c.ttl).Err()
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
