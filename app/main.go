package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"mes-system/internal/listeners"
	"mes-system/internal/repositories"
	"mes-system/internal/routes"
	"mes-system/internal/services"
	"mes-system/pkg/config"
	"mes-system/pkg/database/postgresql"
	apperrors "mes-system/pkg/errors"
	"mes-system/pkg/eventbus"
	applogger "mes-system/pkg/logger"
	"mes-system/pkg/metrics"
	appmiddleware "mes-system/pkg/middleware"
	"mes-system/pkg/utils"
	"mes-system/pkg/validation"
	"mes-system/pkg/websocket"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.New()
	logger := applogger.NewLogger(cfg.Log.Level, cfg.Log.FilePath)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Echo и middleware
	e := echo.New()
	e.HideBanner = true
	e.Validator = validation.New()

	e.Use(middleware.RequestID())
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll: true,
		StackSize:       1 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("!!! ОБНАРУЖЕНА ПАНИКА (PANIC) !!!",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Error(err),
				zap.String("stack", string(stack)),
			)
			if !c.Response().Committed {
				httpErr := apperrors.NewHttpError(http.StatusInternalServerError, "Внутренняя ошибка сервера", err, nil)
				_ = utils.ErrorResponse(c, httpErr, logger)
			}
			return err
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.Server.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, "Idempotency-Key"},
		ExposeHeaders: []string{"Content-Disposition", echo.HeaderXRequestID},
	}))
	e.Use(appmiddleware.RequestLogger(logger.Named("http")))
	e.Use(appmiddleware.RequestTimeout(cfg.Server.RequestTimeout))

	// 2. PostgreSQL и миграции
	dbConn, err := postgresql.ConnectDB(ctx, cfg.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("Не удалось подключиться к PostgreSQL", zap.Error(err))
	}
	defer dbConn.Close()

	if cfg.Postgres.MigrateOnStart {
		if err := postgresql.Migrate(ctx, dbConn, logger); err != nil {
			logger.Fatal("Ошибка миграций", zap.Error(err))
		}
	}

	// 3. Redis. Без него сервис работает: шлюз идемпотентности опирается на журнал.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis недоступен, идемпотентность только через журнал", zap.Error(err), zap.String("address", cfg.Redis.Address))
	}

	// 4. Шина событий, WebSocket и слушатели
	bus := eventbus.New(logger.Named("eventbus"), cfg.EventBus.QueueSize)
	bus.OnDrop(func(event eventbus.Event, subscriber string) {
		metrics.EventBusDropped.WithLabelValues(event.Name()).Inc()
	})

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := websocket.NewHub(logger.Named("ws"))
	go hub.Run(hubCtx)

	liveFeed := listeners.NewLiveFeedListener(
		services.NewLiveFeedService(hub, logger.Named("ws")),
		cfg.EventBus.PieceBatchWindow,
		logger.Named("live"),
	)
	liveFeed.Register(bus)
	listeners.NewRedisRelayListener(repositories.NewRedisCacheRepository(redisClient), cfg.EventBus.ChannelPrefix, logger.Named("relay")).Register(bus)
	listeners.NewMetricsListener(logger).Register(bus)
	listeners.NewReplenishmentListener(logger.Named("replenishment")).Register(bus)

	// 5. Маршруты
	loggers := &routes.Loggers{
		Main:      logger,
		Execution: logger.Named("execution"),
		Order:     logger.Named("order"),
		OEE:       logger.Named("oee"),
	}
	svc := routes.InitRouter(e, dbConn, redisClient, bus, hub, loggers, cfg)

	// 6. Фоновые задачи
	jobCtx, stopJobs := context.WithCancel(context.Background())
	jobDone := make(chan struct{})
	go func() {
		defer close(jobDone)
		services.NewSnapshotJob(svc.OEE, cfg.OEE.SnapshotInterval, logger.Named("oee-job")).Run(jobCtx)
	}()

	// 7. Сервер
	go func() {
		logger.Info("🚀 Сервер запущен", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Ошибка запуска сервера", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Получен сигнал остановки, завершаем работу")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ошибка остановки HTTP-сервера", zap.Error(err))
	}
	stopJobs()
	<-jobDone

	// события, принятые до остановки, успевают уйти подписчикам
	if err := bus.Close(shutdownCtx); err != nil {
		logger.Warn("Шина событий закрыта не полностью", zap.Error(err))
	}
	liveFeed.Flush()
	stopHub()

	logger.Info("Сервер остановлен")
}
