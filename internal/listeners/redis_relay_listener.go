package listeners

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"mes-system/internal/repositories"
	"mes-system/pkg/eventbus"
)

// RedisRelayListener публикует каждое доменное событие в канал Redis <prefix><имя события>.
// Внешние подписчики (ERP, склад) читают каналы через Pub/Sub.
type RedisRelayListener struct {
	cache  repositories.CacheRepositoryInterface
	prefix string
	logger *zap.Logger
}

func NewRedisRelayListener(cache repositories.CacheRepositoryInterface, prefix string, logger *zap.Logger) *RedisRelayListener {
	return &RedisRelayListener{cache: cache, prefix: prefix, logger: logger}
}

func (l *RedisRelayListener) Register(bus *eventbus.Bus) {
	bus.SubscribeAll("redis_relay", l.handle)
	l.logger.Info("RedisRelayListener подписан на все доменные события", zap.String("prefix", l.prefix))
}

func (l *RedisRelayListener) Channel(eventName string) string {
	return l.prefix + eventName
}

func (l *RedisRelayListener) handle(ctx context.Context, event eventbus.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("сериализация события %s: %w", event.Name(), err)
	}
	if err := l.cache.Publish(ctx, l.Channel(event.Name()), payload); err != nil {
		return fmt.Errorf("публикация события %s в Redis: %w", event.Name(), err)
	}
	return nil
}
