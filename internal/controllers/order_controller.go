package controllers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"mes-system/config"
	"mes-system/internal/dto"
	"mes-system/internal/entities"
	"mes-system/internal/services"
	apperrors "mes-system/pkg/errors"
	"mes-system/pkg/utils"
	"mes-system/pkg/validation"
)

const ordersUploadContext = "orders_xlsx"

type OrderController struct {
	orderService services.OrderServiceInterface
	importer     services.OrderImporterInterface
	logger       *zap.Logger
}

func NewOrderController(orderService services.OrderServiceInterface, importer services.OrderImporterInterface, logger *zap.Logger) *OrderController {
	return &OrderController{orderService: orderService, importer: importer, logger: logger}
}

func (c *OrderController) Import(ctx echo.Context) error {
	var req dto.ImportOrderDTO
	if err := bindJSON(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	if err := ctx.Validate(&req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.orderService.ImportOrder(ctx.Request().Context(), req)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	if res.Created {
		return utils.SuccessResponse(ctx, res, "Заказ создан", http.StatusCreated)
	}
	return utils.SuccessResponse(ctx, res, "Заказ обновлен", http.StatusOK)
}

func (c *OrderController) ImportXLSX(ctx echo.Context) error {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(ctx,
			apperrors.NewHttpError(http.StatusBadRequest, "Файл 'file' обязателен", err, nil),
			c.logger,
		)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	defer file.Close()

	if err := validation.ValidateFile(fileHeader, file, ordersUploadContext); err != nil {
		return utils.ErrorResponse(ctx,
			apperrors.NewHttpError(http.StatusBadRequest, err.Error(), err, map[string]interface{}{"filename": fileHeader.Filename}),
			c.logger,
		)
	}

	report, err := c.importer.ImportXLSX(ctx.Request().Context(), file, config.UploadContexts[ordersUploadContext].MaxRows)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, report, "Импорт заказов завершен", http.StatusOK)
}

func (c *OrderController) Find(ctx echo.Context) error {
	res, err := c.orderService.FindOrder(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Заказ найден", http.StatusOK)
}

func (c *OrderController) Search(ctx echo.Context) error {
	query := ctx.QueryParams()
	filter := entities.OrderFilter{
		Status:       utils.ParseListParam(query, "status"),
		Type:         strings.ToUpper(query.Get("type")),
		ErpOrderCode: query.Get("erp_order_code"),
	}
	filter.Limit, filter.Offset = utils.ParsePaginationParams(query)

	var err error
	if filter.DueFrom, err = utils.ParseTimeParam(query, "due_from"); err != nil {
		return utils.ErrorResponse(ctx, apperrors.NewHttpError(http.StatusBadRequest, err.Error(), err, nil), c.logger)
	}
	if filter.DueTo, err = utils.ParseTimeParam(query, "due_to"); err != nil {
		return utils.ErrorResponse(ctx, apperrors.NewHttpError(http.StatusBadRequest, err.Error(), err, nil), c.logger)
	}

	res, err := c.orderService.SearchOrders(ctx.Request().Context(), filter)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Список заказов получен", http.StatusOK)
}

func (c *OrderController) Recalculate(ctx echo.Context) error {
	res, err := c.orderService.Recalculate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Статус заказа пересчитан", http.StatusOK)
}

func (c *OrderController) SetWorkcenterEnabled(ctx echo.Context) error {
	var req dto.SetWorkcenterEnabledDTO
	if err := bindJSON(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	if err := ctx.Validate(&req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	wc, err := c.orderService.SetWorkcenterEnabled(ctx.Request().Context(), ctx.Param("id"), req)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, wc, "Рабочий центр обновлен", http.StatusOK)
}
