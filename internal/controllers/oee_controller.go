package controllers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"mes-system/internal/dto"
	"mes-system/internal/entities"
	"mes-system/internal/services"
	apperrors "mes-system/pkg/errors"
	"mes-system/pkg/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type OEEController struct {
	oeeService services.OEEServiceInterface
	logger     *zap.Logger
}

func NewOEEController(oeeService services.OEEServiceInterface, logger *zap.Logger) *OEEController {
	return &OEEController{oeeService: oeeService, logger: logger}
}

// Calculate - GET /oee?workcenter_id=&date=&shift=&persist=
func (c *OEEController) Calculate(ctx echo.Context) error {
	var req dto.OEEQueryDTO
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, apperrors.NewHttpError(http.StatusBadRequest, "Неверные параметры запроса", err, nil), c.logger)
	}
	if err := ctx.Validate(&req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.oeeService.Calculate(ctx.Request().Context(), req)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "OEE рассчитан", http.StatusOK)
}

func (c *OEEController) CalculateRange(ctx echo.Context) error {
	var req dto.OEERangeQueryDTO
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, apperrors.NewHttpError(http.StatusBadRequest, "Неверные параметры запроса", err, nil), c.logger)
	}
	if err := ctx.Validate(&req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.oeeService.CalculateRange(ctx.Request().Context(), req)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "OEE за период рассчитан", http.StatusOK)
}

// StoreSnapshot - POST /kpis/oee/snapshots: расчет смены с сохранением снимка.
func (c *OEEController) StoreSnapshot(ctx echo.Context) error {
	var req dto.OEEQueryDTO
	if err := bindJSON(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	req.Persist = true
	if err := ctx.Validate(&req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.oeeService.Calculate(ctx.Request().Context(), req)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Снимок OEE сохранен", http.StatusCreated)
}

func (c *OEEController) History(ctx echo.Context) error {
	filter, err := c.parseHistoryFilter(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.oeeService.History(ctx.Request().Context(), filter)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "История OEE получена", http.StatusOK)
}

func (c *OEEController) parseHistoryFilter(ctx echo.Context) (entities.OEEHistoryFilter, error) {
	query := ctx.QueryParams()
	filter := entities.OEEHistoryFilter{WorkcenterID: query.Get("workcenter_id")}
	filter.Limit, filter.Offset = utils.ParsePaginationParams(query)

	var err error
	if filter.From, err = utils.ParseTimeParam(query, "from"); err != nil {
		return filter, apperrors.NewHttpError(http.StatusBadRequest, err.Error(), err, nil)
	}
	if filter.To, err = utils.ParseTimeParam(query, "to"); err != nil {
		return filter, apperrors.NewHttpError(http.StatusBadRequest, err.Error(), err, nil)
	}
	if raw := query.Get("shift"); raw != "" {
		shift, err := strconv.Atoi(raw)
		if err != nil || shift < 1 {
			return filter, apperrors.NewHttpError(http.StatusBadRequest, "Неверный номер смены", err, map[string]interface{}{"shift": raw})
		}
		filter.ShiftNumber = shift
	}
	return filter, nil
}

// Export - те же фильтры, что у History, ответ в xlsx.
func (c *OEEController) Export(ctx echo.Context) error {
	filter, err := c.parseHistoryFilter(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	var buf bytes.Buffer
	if err := c.oeeService.ExportHistory(ctx.Request().Context(), filter, &buf); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	fileName := fmt.Sprintf("oee_%s.xlsx", time.Now().Format("2006-01-02"))
	ctx.Response().Header().Set("Content-Disposition", "attachment; filename="+fileName)
	return ctx.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (c *OEEController) bindReliability(ctx echo.Context) (dto.ReliabilityQueryDTO, error) {
	var req dto.ReliabilityQueryDTO
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, &req); err != nil {
		return req, apperrors.NewHttpError(http.StatusBadRequest, "Неверные параметры запроса", err, nil)
	}
	if err := ctx.Validate(&req); err != nil {
		return req, err
	}
	return req, nil
}

// MTTR - GET /kpis/mttr?workcenter_id=&days=
func (c *OEEController) MTTR(ctx echo.Context) error {
	req, err := c.bindReliability(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	res, err := c.oeeService.MTTR(ctx.Request().Context(), req)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "MTTR рассчитан", http.StatusOK)
}

// MTBF - GET /kpis/mtbf?workcenter_id=&days=
func (c *OEEController) MTBF(ctx echo.Context) error {
	req, err := c.bindReliability(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	res, err := c.oeeService.MTBF(ctx.Request().Context(), req)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "MTBF рассчитан", http.StatusOK)
}
