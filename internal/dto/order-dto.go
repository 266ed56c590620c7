package dto

import (
	"time"

	"github.com/aarondl/null/v8"

	"mes-system/internal/entities"
)

// ImportOrderDTO - заказ из ERP. Повторный импорт с тем же кодом обновляет заказ.
type ImportOrderDTO struct {
	ErpOrderCode string    `json:"erp_order_code" validate:"required,max=100"`
	Type         string    `json:"type" validate:"required,order_type"`
	ItemID       string    `json:"item_id" validate:"required,uuid"`
	PlannedQty   int       `json:"planned_qty" validate:"required,gt=0"`
	DueDate      null.Time `json:"due_date"`
	Priority     null.Int  `json:"priority" validate:"omitempty,min=0,max=1000"`
}

type OrderDTO struct {
	ID               string     `json:"id"`
	ErpOrderCode     string     `json:"erp_order_code"`
	Type             string     `json:"type"`
	ItemID           string     `json:"item_id"`
	PlannedQty       int        `json:"planned_qty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	Priority         int        `json:"priority"`
	Status           string     `json:"status"`
	ExecutedGoodQty  int        `json:"executed_good_qty"`
	ExecutedTotalQty int        `json:"executed_total_qty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Created          bool       `json:"created,omitempty"`
}

func OrderToDTO(o *entities.ProductionOrder) *OrderDTO {
	if o == nil {
		return nil
	}
	return &OrderDTO{
		ID:               o.ID,
		ErpOrderCode:     o.ErpOrderCode,
		Type:             o.Type,
		ItemID:           o.ItemID,
		PlannedQty:       o.PlannedQty,
		DueDate:          o.DueDate,
		Priority:         o.Priority,
		Status:           o.Status,
		ExecutedGoodQty:  o.ExecutedGoodQty,
		ExecutedTotalQty: o.ExecutedTotalQty,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func StepExecutionToDTO(s *entities.StepExecution) *StepExecutionDTO {
	if s == nil {
		return nil
	}
	return &StepExecutionDTO{
		ID:            s.ID,
		Status:        s.Status,
		OperatorID:    s.OperatorID,
		StartedAt:     s.StartedAt,
		CompletedAt:   s.CompletedAt,
		PlannedQty:    s.PlannedQty,
		ExecutedQty:   s.ExecutedQty,
		GoodQty:       s.GoodQty,
		ScrapQty:      s.ScrapQty,
		ReuseQty:      s.ReuseQty,
		WorkcenterID:  s.WorkcenterID,
		ProcessStepID: s.ProcessStepID,
	}
}

type SetWorkcenterEnabledDTO struct {
	Enabled bool        `json:"enabled"`
	Reason  null.String `json:"reason" validate:"omitempty,max=500"`
	ActorID string      `json:"actor_id" validate:"required,max=100"`
}

// OrderTraceDTO - полная история заказа.
type OrderTraceDTO struct {
	Order          *OrderDTO                 `json:"order"`
	StepExecutions []StepExecutionDTO        `json:"step_executions"`
	Events         []entities.ExecutionEvent `json:"events"`
	QualityRecords []entities.QualityRecord  `json:"quality_records"`
}

type TimelineEntryDTO struct {
	Kind      string      `json:"kind"`
	Timestamp time.Time   `json:"ts"`
	Data      interface{} `json:"data"`
}

// LotTraceDTO - хронология по партии.
type LotTraceDTO struct {
	Lot      *entities.Lot      `json:"lot"`
	Timeline []TimelineEntryDTO `json:"timeline"`
}

type QualitySummaryDTO struct {
	TotalScrap int                          `json:"total_scrap"`
	TotalReuse int                          `json:"total_reuse"`
	Rows       []entities.QualitySummaryRow `json:"rows"`
}

type ImportRowErrorDTO struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// OrderImportReportDTO - итог загрузки заказов из xlsx.
type OrderImportReportDTO struct {
	Sheet   string              `json:"sheet"`
	Created int                 `json:"created"`
	Updated int                 `json:"updated"`
	Skipped int                 `json:"skipped"`
	Errors  []ImportRowErrorDTO `json:"errors"`
}
