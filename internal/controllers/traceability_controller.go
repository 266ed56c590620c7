package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"mes-system/internal/entities"
	"mes-system/internal/services"
	apperrors "mes-system/pkg/errors"
	"mes-system/pkg/utils"
)

type TraceabilityController struct {
	traceService services.TraceabilityServiceInterface
	logger       *zap.Logger
}

func NewTraceabilityController(traceService services.TraceabilityServiceInterface, logger *zap.Logger) *TraceabilityController {
	return &TraceabilityController{traceService: traceService, logger: logger}
}

func (c *TraceabilityController) OrderHistory(ctx echo.Context) error {
	res, err := c.traceService.OrderHistory(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "История заказа получена", http.StatusOK)
}

func (c *TraceabilityController) LotHistory(ctx echo.Context) error {
	res, err := c.traceService.LotHistory(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "История партии получена", http.StatusOK)
}

func (c *TraceabilityController) Events(ctx echo.Context) error {
	query := ctx.QueryParams()
	filter := entities.EventFilter{
		EventTypes:        utils.ParseListParam(query, "event_type"),
		ProductionOrderID: query.Get("production_order_id"),
		LotID:             query.Get("lot_id"),
		WorkcenterID:      query.Get("workcenter_id"),
	}
	filter.Limit, filter.Offset = utils.ParsePaginationParams(query)

	var err error
	if filter.From, err = utils.ParseTimeParam(query, "from"); err != nil {
		return utils.ErrorResponse(ctx, apperrors.NewHttpError(http.StatusBadRequest, err.Error(), err, nil), c.logger)
	}
	if filter.To, err = utils.ParseTimeParam(query, "to"); err != nil {
		return utils.ErrorResponse(ctx, apperrors.NewHttpError(http.StatusBadRequest, err.Error(), err, nil), c.logger)
	}

	res, err := c.traceService.Events(ctx.Request().Context(), filter)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Журнал событий получен", http.StatusOK)
}
