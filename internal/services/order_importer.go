package services

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"mes-system/internal/dto"
	"mes-system/pkg/constants"
	apperrors "mes-system/pkg/errors"
)

var importDateLayouts = []string{"2006-01-02", "02.01.2006", "01-02-06", "2006-01-02 15:04:05"}

// StructValidator - то, что умеет echo.Validator.
type StructValidator interface {
	Validate(i interface{}) error
}

type OrderImporterInterface interface {
	ImportXLSX(ctx context.Context, r io.Reader, maxRows int) (*dto.OrderImportReportDTO, error)
}

// OrderImporter загружает заказы из выгрузки ERP в xlsx.
// Каждая строка импортируется отдельно, ошибки строк не прерывают загрузку.
type OrderImporter struct {
	orders    OrderServiceInterface
	validator StructValidator
	logger    *zap.Logger
}

func NewOrderImporter(orders OrderServiceInterface, validator StructValidator, logger *zap.Logger) OrderImporterInterface {
	return &OrderImporter{orders: orders, validator: validator, logger: logger}
}

type importColumns struct {
	code, orderType, item, planned, due, priority int
}

func (c importColumns) complete() bool {
	return c.code != -1 && c.item != -1 && c.planned != -1
}

func (s *OrderImporter) ImportXLSX(ctx context.Context, r io.Reader, maxRows int) (*dto.OrderImportReportDTO, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperrors.NewValidationError("файл не является книгой Excel: %v", err)
	}
	defer f.Close()

	sheet, rows, cols, headerRow := findOrderHeader(f)
	if headerRow == -1 {
		return nil, apperrors.NewValidationError("не найдена шапка таблицы: нужны колонки 'Код заказа', 'Изделие' и 'План'")
	}
	if maxRows > 0 && len(rows)-headerRow-1 > maxRows {
		return nil, apperrors.NewValidationError("в файле больше %d строк", maxRows)
	}

	report := &dto.OrderImportReportDTO{Sheet: sheet, Errors: []dto.ImportRowErrorDTO{}}
	for i := headerRow + 1; i < len(rows); i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		row := rows[i]
		lineNum := i + 1

		code := cell(row, cols.code)
		if code == "" || isTotalsRow(code) {
			report.Skipped++
			continue
		}

		req, err := parseOrderRow(row, cols)
		if err == nil {
			err = s.validator.Validate(req)
		}
		if err != nil {
			report.Errors = append(report.Errors, dto.ImportRowErrorDTO{Row: lineNum, Message: err.Error()})
			continue
		}

		saved, err := s.orders.ImportOrder(ctx, *req)
		if err != nil {
			s.logger.Warn("Строка xlsx не импортирована", zap.Int("row", lineNum), zap.String("erp_order_code", code), zap.Error(err))
			report.Errors = append(report.Errors, dto.ImportRowErrorDTO{Row: lineNum, Message: err.Error()})
			continue
		}
		if saved.Created {
			report.Created++
		} else {
			report.Updated++
		}
	}

	s.logger.Info("Импорт заказов из xlsx завершен",
		zap.String("sheet", sheet),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

// findOrderHeader ищет первую строку с обязательными колонками на любом листе.
func findOrderHeader(f *excelize.File) (string, [][]string, importColumns, int) {
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for rIdx, row := range rows {
			cols := importColumns{-1, -1, -1, -1, -1, -1}
			for cIdx, name := range row {
				n := strings.ToLower(strings.TrimSpace(name))
				switch {
				// "Код изделия" - это изделие, поэтому оно проверяется раньше кода заказа
				case strings.Contains(n, "издели") || strings.Contains(n, "item"):
					cols.item = cIdx
				case strings.Contains(n, "код") || strings.Contains(n, "erp"):
					cols.code = cIdx
				case strings.Contains(n, "тип") || n == "type":
					cols.orderType = cIdx
				case strings.Contains(n, "план") || strings.Contains(n, "planned"):
					cols.planned = cIdx
				case strings.Contains(n, "срок") || strings.Contains(n, "due"):
					cols.due = cIdx
				case strings.Contains(n, "приоритет") || strings.Contains(n, "priority"):
					cols.priority = cIdx
				}
			}
			if cols.complete() {
				return sheet, rows, cols, rIdx
			}
		}
	}
	return "", nil, importColumns{}, -1
}

func parseOrderRow(row []string, cols importColumns) (*dto.ImportOrderDTO, error) {
	req := &dto.ImportOrderDTO{
		ErpOrderCode: cell(row, cols.code),
		Type:         strings.ToUpper(cell(row, cols.orderType)),
		ItemID:       cell(row, cols.item),
	}
	if req.Type == "" {
		req.Type = constants.OrderTypeProduction
	}

	planned, err := strconv.Atoi(strings.ReplaceAll(cell(row, cols.planned), " ", ""))
	if err != nil {
		return nil, fmt.Errorf("план '%s' не является целым числом", cell(row, cols.planned))
	}
	req.PlannedQty = planned

	if raw := cell(row, cols.due); raw != "" {
		due, err := parseImportDate(raw)
		if err != nil {
			return nil, err
		}
		req.DueDate = null.TimeFrom(due)
	}
	if raw := cell(row, cols.priority); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("приоритет '%s' не является целым числом", raw)
		}
		req.Priority = null.IntFrom(p)
	}
	return req, nil
}

func parseImportDate(raw string) (time.Time, error) {
	for _, layout := range importDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("не удалось разобрать срок '%s'", raw)
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isTotalsRow(val string) bool {
	v := strings.ToLower(val)
	return strings.Contains(v, "итого") || strings.Contains(v, "всего")
}
