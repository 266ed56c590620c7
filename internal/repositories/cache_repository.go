package repositories

import (
	"context"
	"time"
)

// CacheRepositoryInterface - быстрый кеш для ключей идемпотентности и ретрансляции событий.
type CacheRepositoryInterface interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// SetNX записывает значение, только если ключа нет. true - ключ записан.
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	// Get возвращает apperrors.ErrCacheMiss, если ключа нет.
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Publish(ctx context.Context, channel string, message interface{}) error
}
