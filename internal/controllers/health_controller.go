package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

type HealthController struct {
	db     *pgxpool.Pool
	redis  *redis.Client
	logger *zap.Logger
}

func NewHealthController(db *pgxpool.Pool, redisClient *redis.Client, logger *zap.Logger) *HealthController {
	return &HealthController{db: db, redis: redisClient, logger: logger}
}

// Health проверяет PostgreSQL и Redis. Без Redis сервис работает, поэтому он только в деталях.
func (c *HealthController) Health(ctx echo.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), healthTimeout)
	defer cancel()

	status := map[string]string{"postgres": "ok", "redis": "ok"}
	code := http.StatusOK

	if err := c.db.Ping(reqCtx); err != nil {
		c.logger.Error("Проверка готовности: PostgreSQL недоступен", zap.Error(err))
		status["postgres"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if err := c.redis.Ping(reqCtx).Err(); err != nil {
		c.logger.Warn("Проверка готовности: Redis недоступен", zap.Error(err))
		status["redis"] = err.Error()
	}
	return ctx.JSON(code, status)
}
