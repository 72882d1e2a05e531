package cache

import (
	"context"
	"errors"
	"time"

	"github.com/marcogenualdo/ridegate/internal/config"
)

var ErrNotFound = errors.New("key not found")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetIfAbsent stores value only when key is missing or expired and reports
	// whether it did.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Take returns the value for key and removes it.
	Take(ctx context.Context, key string) ([]byte, error)
	// Append adds value to the end of the list at key, keeps only the newest
	// max values and refreshes the list's ttl, as one operation.
	Append(ctx context.Context, key string, value []byte, max int, ttl time.Duration) error
	// List returns the values of the list at key, oldest first. A missing
	// list is empty.
	List(ctx context.Context, key string) ([][]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryCache(), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, errors.New("redis config is required for redis cache type")
		}
		return NewRedisCache(*cfg.Redis)
	default:
		return nil, errors.New("unsupported cache type: " + cfg.Type)
	}
}
