package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ReportProgress is the hot copy of a report's generation state, read by
// the status endpoint without touching Postgres.
type ReportProgress struct {
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	CurrentStep string `json:"current_step,omitempty"`
}

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	SetReportProgress(ctx context.Context, reportID uuid.UUID, p ReportProgress, ttl time.Duration) error
	GetReportProgress(ctx context.Context, reportID uuid.UUID) (ReportProgress, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) SetReportProgress(ctx context.Context, reportID uuid.UUID, p ReportProgress, ttl time.Duration) error {
	return setProgress(ctx, c, reportID, p, ttl)
}

func (c *RedisCache) GetReportProgress(ctx context.Context, reportID uuid.UUID) (ReportProgress, bool, error) {
	return getProgress(ctx, c, reportID)
}

// IncrWithExpiry increments key. The expiry is set when the counter is
// created and left alone by later increments.
func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func setProgress(ctx context.Context, c Cache, reportID uuid.UUID, p ReportProgress, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	return c.Set(ctx, ReportStatusKey(reportID), data, ttl)
}

func getProgress(ctx context.Context, c Cache, reportID uuid.UUID) (ReportProgress, bool, error) {
	data, found, err := c.Get(ctx, ReportStatusKey(reportID))
	if err != nil || !found {
		return ReportProgress{}, false, err
	}
	var p ReportProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return ReportProgress{}, false, fmt.Errorf("decode progress: %w", err)
	}
	return p, true, nil
}
