package routes

import (
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mes-system/internal/controllers"
	"mes-system/internal/repositories"
	"mes-system/internal/services"
	"mes-system/pkg/config"
	"mes-system/pkg/eventbus"
	"mes-system/pkg/websocket"
)

type Loggers struct {
	Main      *zap.Logger
	Execution *zap.Logger
	Order     *zap.Logger
	OEE       *zap.Logger
}

// Controllers - все HTTP-обработчики API.
type Controllers struct {
	Execution    *controllers.ExecutionController
	Quality      *controllers.QualityController
	Order        *controllers.OrderController
	Traceability *controllers.TraceabilityController
	OEE          *controllers.OEEController
	WebSocket    *controllers.WebSocketController
	Health       *controllers.HealthController
}

// Services - то, что нужно фоновым задачам вне HTTP.
type Services struct {
	OEE services.OEEServiceInterface
}

func InitRouter(e *echo.Echo, dbConn *pgxpool.Pool, redisClient *redis.Client, bus *eventbus.Bus, hub *websocket.Hub, loggers *Loggers, cfg *config.Config) *Services {
	loggers.Main.Info("InitRouter: Начало создания маршрутов")

	// --- 0. ОБЩИЕ КОМПОНЕНТЫ ---
	txManager := repositories.NewTxManager(dbConn, repositories.WithLockTimeout(cfg.Postgres.LockTimeout))
	cache := repositories.NewRedisCacheRepository(redisClient)

	// --- 1. РЕПОЗИТОРИИ ---
	orderRepo := repositories.NewOrderRepository(dbConn, loggers.Order)
	stepRepo := repositories.NewProcessStepRepository(dbConn)
	workcenterRepo := repositories.NewWorkcenterRepository(dbConn, loggers.Main)
	lotRepo := repositories.NewLotRepository(dbConn)
	executionRepo := repositories.NewStepExecutionRepository(dbConn, loggers.Execution)
	ledger := repositories.NewExecutionEventRepository(dbConn, loggers.Execution)
	qualityRepo := repositories.NewQualityRecordRepository(dbConn)
	shiftRepo := repositories.NewShiftScheduleRepository(dbConn)
	downtimeRepo := repositories.NewDowntimeRepository(dbConn)
	snapshotRepo := repositories.NewOEESnapshotRepository(dbConn)

	// --- 2. СЕРВИСЫ ---
	gateway := services.NewIdempotencyGateway(cache, loggers.Execution)
	gate := services.NewMaterialFlowGate(orderRepo, stepRepo, workcenterRepo, executionRepo, lotRepo, loggers.Execution)
	deriver := services.NewOrderStatusDeriver(orderRepo, executionRepo, loggers.Order)

	executionService := services.NewExecutionService(
		txManager, ledger, gateway, gate, executionRepo, deriver, bus,
		cfg.Execution.IdempotencyTTL, loggers.Execution,
	)
	qualityService := services.NewQualityService(
		txManager, ledger, gateway, executionRepo, orderRepo, qualityRepo, deriver, bus,
		cfg.Execution.IdempotencyTTL, cfg.Execution.ReplenishmentScrapThreshold, loggers.Execution,
	)
	orderService := services.NewOrderService(txManager, orderRepo, workcenterRepo, deriver, bus, loggers.Order)
	importer := services.NewOrderImporter(orderService, e.Validator, loggers.Order)
	traceService := services.NewTraceabilityService(orderRepo, lotRepo, executionRepo, ledger, qualityRepo, loggers.Main)
	oeeService := services.NewOEEService(shiftRepo, downtimeRepo, executionRepo, snapshotRepo, workcenterRepo, cfg.OEE.Location, loggers.OEE)

	// --- 3. КОНТРОЛЛЕРЫ ---
	ctrls := &Controllers{
		Execution:    controllers.NewExecutionController(executionService, loggers.Execution),
		Quality:      controllers.NewQualityController(qualityService, loggers.Execution),
		Order:        controllers.NewOrderController(orderService, importer, loggers.Order),
		Traceability: controllers.NewTraceabilityController(traceService, loggers.Main),
		OEE:          controllers.NewOEEController(oeeService, loggers.OEE),
		WebSocket:    controllers.NewWebSocketController(hub, loggers.Main),
		Health:       controllers.NewHealthController(dbConn, redisClient, loggers.Main),
	}

	// --- 4. РОУТЕРЫ ---
	RegisterRoutes(e, ctrls)

	loggers.Main.Info("INIT_ROUTER: Создание маршрутов завершено")
	return &Services{OEE: oeeService}
}

// RegisterRoutes вешает обработчики на /api и служебные пути.
func RegisterRoutes(e *echo.Echo, ctrls *Controllers) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.GET("/health", ctrls.Health.Health)
	api.GET("/ws/events", ctrls.WebSocket.ServeWs)

	runExecutionRouter(api, ctrls.Execution, ctrls.Quality)
	runOrderRouter(api, ctrls.Order)
	runQualityRouter(api, ctrls.Quality)
	runTraceabilityRouter(api, ctrls.Traceability)
	runOEERouter(api, ctrls.OEE)
}
