package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mes-system/internal/dto"
	"mes-system/internal/repositories"
	"mes-system/pkg/constants"
	apperrors "mes-system/pkg/errors"
)

// ReserveOutcome - результат проверки ключа идемпотентности.
type ReserveOutcome int

const (
	OutcomeNew ReserveOutcome = iota
	OutcomeDuplicate
)

func (o ReserveOutcome) String() string {
	if o == OutcomeDuplicate {
		return "duplicate"
	}
	return "new"
}

// IdempotencyGatewayInterface - быстрая проверка повторов в Redis.
// Окончательное решение о дубликате принимает уникальный индекс журнала.
type IdempotencyGatewayInterface interface {
	CheckAndReserve(ctx context.Context, key string, ttl time.Duration) (ReserveOutcome, error)
	StoreResult(ctx context.Context, key string, result *dto.ExecutionResultDTO, ttl time.Duration) error
	// FetchResult возвращает apperrors.ErrCacheMiss, если результата нет.
	FetchResult(ctx context.Context, key string) (*dto.ExecutionResultDTO, error)
	// Release снимает резерв, чтобы исправленный запрос с тем же ключом был обработан.
	Release(ctx context.Context, key string) error
}

type IdempotencyGateway struct {
	cache  repositories.CacheRepositoryInterface
	logger *zap.Logger
}

func NewIdempotencyGateway(cache repositories.CacheRepositoryInterface, logger *zap.Logger) IdempotencyGatewayInterface {
	return &IdempotencyGateway{cache: cache, logger: logger}
}

func reserveKey(key string) string { return fmt.Sprintf(constants.CacheKeyIdempotencyReserve, key) }
func resultKey(key string) string  { return fmt.Sprintf(constants.CacheKeyIdempotencyResult, key) }

func (g *IdempotencyGateway) CheckAndReserve(ctx context.Context, key string, ttl time.Duration) (ReserveOutcome, error) {
	if key == "" {
		return OutcomeNew, apperrors.NewValidationError("ключ идемпотентности не задан")
	}
	if ttl <= 0 {
		ttl = constants.DefaultIdempotencyTTL
	}
	reserved, err := g.cache.SetNX(ctx, reserveKey(key), "1", ttl)
	if err != nil {
		return OutcomeNew, fmt.Errorf("не удалось зарезервировать ключ идемпотентности: %w", err)
	}
	if !reserved {
		return OutcomeDuplicate, nil
	}
	return OutcomeNew, nil
}

func (g *IdempotencyGateway) StoreResult(ctx context.Context, key string, result *dto.ExecutionResultDTO, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = constants.DefaultIdempotencyTTL
	}
	stored := *result
	stored.Replayed = false
	payload, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return g.cache.Set(ctx, resultKey(key), payload, ttl)
}

func (g *IdempotencyGateway) FetchResult(ctx context.Context, key string) (*dto.ExecutionResultDTO, error) {
	raw, err := g.cache.Get(ctx, resultKey(key))
	if err != nil {
		return nil, err
	}
	var result dto.ExecutionResultDTO
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		g.logger.Warn("Поврежденный результат в кеше идемпотентности", zap.String("key", key), zap.Error(err))
		return nil, apperrors.ErrCacheMiss
	}
	return &result, nil
}

func (g *IdempotencyGateway) Release(ctx context.Context, key string) error {
	if err := g.cache.Del(ctx, reserveKey(key)); err != nil && !errors.Is(err, apperrors.ErrCacheMiss) {
		return err
	}
	return nil
}
