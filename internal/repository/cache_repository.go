package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/relink-dev/relink/internal/models"
)

// ErrCacheMiss is returned for absent keys. The caller decides whether a
// miss means "not found" (link mappings) or "fresh window" (rate limits).
var ErrCacheMiss = errors.New("cache miss")

// CacheRepository is the edge cache contract: get/put/delete of opaque JSON
// blobs with optional TTL. No atomic increment or compare-and-swap is
// assumed; read-modify-write callers accept the resulting race.
type CacheRepository interface {
	GetMapping(ctx context.Context, code string) (*models.LinkMapping, error)
	SetMapping(ctx context.Context, code string, mapping *models.LinkMapping, ttl time.Duration) error
	DeleteMapping(ctx context.Context, code string) error

	GetWindow(ctx context.Context, key string) (*models.RateLimitWindow, error)
	SetWindow(ctx context.Context, key string, window *models.RateLimitWindow, ttl time.Duration) error
}

type cacheRepository struct {
	redis *RedisDB
}

func NewCacheRepository(redis *RedisDB) CacheRepository {
	return &cacheRepository{redis: redis}
}

func (r *cacheRepository) GetMapping(ctx context.Context, code string) (*models.LinkMapping, error) {
	data, err := r.redis.Client.Get(ctx, mappingKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get mapping %s: %w", code, err)
	}

	var mapping models.LinkMapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mapping %s: %w", code, err)
	}

	return &mapping, nil
}

func (r *cacheRepository) SetMapping(ctx context.Context, code string, mapping *models.LinkMapping, ttl time.Duration) error {
	data, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping %s: %w", code, err)
	}

	return r.redis.Client.Set(ctx, mappingKey(code), data, ttl).Err()
}

func (r *cacheRepository) DeleteMapping(ctx context.Context, code string) error {
	return r.redis.Client.Del(ctx, mappingKey(code)).Err()
}

func (r *cacheRepository) GetWindow(ctx context.Context, key string) (*models.RateLimitWindow, error) {
	data, err := r.redis.Client.Get(ctx, windowKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get rate limit window %s: %w", key, err)
	}

	var window models.RateLimitWindow
	if err := json.Unmarshal(data, &window); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rate limit window %s: %w", key, err)
	}

	return &window, nil
}

func (r *cacheRepository) SetWindow(ctx context.Context, key string, window *models.RateLimitWindow, ttl time.Duration) error {
	data, err := json.Marshal(window)
	if err != nil {
		return fmt.Errorf("failed to marshal rate limit window %s: %w", key, err)
	}

	return r.redis.Client.Set(ctx, windowKey(key), data, ttl).Err()
}

// The mapping namespace is global per short code, not per org: migrated
// links keep the same key.
func mappingKey(code string) string {
	return "link:" + code
}

func windowKey(key string) string {
	return "ratelimit:" + key
}
