package controllers

import (
	"net/http"
	"strings"

	"github.com/aarondl/null/v8"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"mes-system/internal/dto"
	"mes-system/internal/services"
	apperrors "mes-system/pkg/errors"
	"mes-system/pkg/utils"
)

const headerIdempotencyKey = "Idempotency-Key"

type ExecutionController struct {
	executionService services.ExecutionServiceInterface
	logger           *zap.Logger
}

func NewExecutionController(executionService services.ExecutionServiceInterface, logger *zap.Logger) *ExecutionController {
	return &ExecutionController{executionService: executionService, logger: logger}
}

func (c *ExecutionController) Scan(ctx echo.Context) error {
	var req dto.ScanDTO
	if err := bindJSON(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	if key := idempotencyHeader(ctx); key != "" {
		req.IdempotencyKey = null.StringFrom(key)
	}
	if err := ctx.Validate(&req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.executionService.Scan(ctx.Request().Context(), req)
	return respondExecution(ctx, res, err, "Сканирование принято", c.logger)
}

func (c *ExecutionController) Start(ctx echo.Context) error {
	var req dto.StartStepDTO
	if err := bindJSON(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	req.ProductionOrderID, req.ProcessStepID = stepPath(ctx)
	if key := idempotencyHeader(ctx); key != "" {
		req.IdempotencyKey = key
	}
	if err := ctx.Validate(&req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.executionService.StartStep(ctx.Request().Context(), req)
	return respondExecution(ctx, res, err, "Шаг запущен", c.logger)
}

func (c *ExecutionController) Count(ctx echo.Context) error {
	var req dto.CountDTO
	if err := bindJSON(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	req.ProductionOrderID, req.ProcessStepID = stepPath(ctx)
	if key := idempotencyHeader(ctx); key != "" {
		req.IdempotencyKey = null.StringFrom(key)
	}
	if err := ctx.Validate(&req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.executionService.CountPieces(ctx.Request().Context(), req)
	return respondExecution(ctx, res, err, "Детали учтены", c.logger)
}

func (c *ExecutionController) Complete(ctx echo.Context) error {
	var req dto.CompleteStepDTO
	if err := bindJSON(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	req.ProductionOrderID, req.ProcessStepID = stepPath(ctx)
	if key := idempotencyHeader(ctx); key != "" {
		req.IdempotencyKey = null.StringFrom(key)
	}
	if err := ctx.Validate(&req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.executionService.CompleteStep(ctx.Request().Context(), req)
	return respondExecution(ctx, res, err, "Шаг завершен", c.logger)
}

// idempotencyHeader - заголовок имеет приоритет над ключом в теле.
func idempotencyHeader(ctx echo.Context) string {
	return strings.TrimSpace(ctx.Request().Header.Get(headerIdempotencyKey))
}

// stepPath - заказ и шаг из /ops/:id/steps/:stepId, путь важнее тела.
func stepPath(ctx echo.Context) (orderID, stepID string) {
	return ctx.Param("id"), ctx.Param("stepId")
}

func bindJSON(ctx echo.Context, target interface{}) error {
	if err := ctx.Bind(target); err != nil {
		return apperrors.NewHttpError(http.StatusBadRequest, "Неверный JSON", err, map[string]interface{}{"uri": ctx.Request().RequestURI})
	}
	return nil
}

// respondExecution: 201 для нового события, 200 для повтора с тем же ключом.
func respondExecution(ctx echo.Context, res *dto.ExecutionResultDTO, err error, message string, logger *zap.Logger) error {
	if err != nil {
		return utils.ErrorResponse(ctx, err, logger)
	}
	if res.Replayed {
		return utils.SuccessResponse(ctx, res, "Событие уже было обработано", http.StatusOK)
	}
	return utils.SuccessResponse(ctx, res, message, http.StatusCreated)
}
