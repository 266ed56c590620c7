package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"mes-system/internal/dto"
	"mes-system/internal/entities"
	"mes-system/internal/services"
	apperrors "mes-system/pkg/errors"
	"mes-system/pkg/utils"
)

type QualityController struct {
	qualityService services.QualityServiceInterface
	logger         *zap.Logger
}

func NewQualityController(qualityService services.QualityServiceInterface, logger *zap.Logger) *QualityController {
	return &QualityController{qualityService: qualityService, logger: logger}
}

func (c *QualityController) Record(ctx echo.Context) error {
	var req dto.QualityDTO
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

	res, err := c.qualityService.RecordQuality(ctx.Request().Context(), req)
	return respondExecution(ctx, res, err, "Решение по качеству записано", c.logger)
}

func (c *QualityController) ListByOrder(ctx echo.Context) error {
	records, err := c.qualityService.ListByOrder(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, records, "Записи качества получены", http.StatusOK)
}

func (c *QualityController) Summary(ctx echo.Context) error {
	query := ctx.QueryParams()
	filter := entities.QualitySummaryFilter{
		ProductionOrderID: query.Get("production_order_id"),
		WorkcenterID:      query.Get("workcenter_id"),
	}
	var err error
	if filter.From, err = utils.ParseTimeParam(query, "from"); err != nil {
		return utils.ErrorResponse(ctx, apperrors.NewHttpError(http.StatusBadRequest, err.Error(), err, nil), c.logger)
	}
	if filter.To, err = utils.ParseTimeParam(query, "to"); err != nil {
		return utils.ErrorResponse(ctx, apperrors.NewHttpError(http.StatusBadRequest, err.Error(), err, nil), c.logger)
	}

	res, err := c.qualityService.Summary(ctx.Request().Context(), filter)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Сводка по качеству сформирована", http.StatusOK)
}
