package dto

import (
	"time"

	"github.com/aarondl/null/v8"
)

// ScanDTO - сканирование штрихкода партии на рабочем центре.
type ScanDTO struct {
	IdempotencyKey    null.String `json:"idempotency_key" validate:"omitempty,idem_key"`
	ProductionOrderID string      `json:"production_order_id" validate:"required,uuid"`
	ProcessStepID     string      `json:"process_step_id" validate:"required,uuid"`
	WorkcenterID      string      `json:"workcenter_id" validate:"required,uuid"`
	LotID             string      `json:"lot_id" validate:"required,uuid"`
	OperatorID        string      `json:"operator_id" validate:"required,max=100"`
	Barcode           null.String `json:"barcode" validate:"omitempty,max=200"`
}

type StartStepDTO struct {
	IdempotencyKey    string      `json:"idempotency_key" validate:"required,idem_key"`
	ProductionOrderID string      `json:"production_order_id" validate:"required,uuid"`
	ProcessStepID     string      `json:"process_step_id" validate:"required,uuid"`
	WorkcenterID      string      `json:"workcenter_id" validate:"required,uuid"`
	OperatorID        string      `json:"operator_id" validate:"required,max=100"`
	LotID             null.String `json:"lot_id" validate:"omitempty,uuid"`
}

type CountDTO struct {
	IdempotencyKey    null.String `json:"idempotency_key" validate:"omitempty,idem_key"`
	ProductionOrderID string      `json:"production_order_id" validate:"required,uuid"`
	ProcessStepID     string      `json:"process_step_id" validate:"required,uuid"`
	WorkcenterID      string      `json:"workcenter_id" validate:"required,uuid"`
	OperatorID        null.String `json:"operator_id" validate:"omitempty,max=100"`
	PiecesPerCycle    null.Int    `json:"pieces_per_cycle" validate:"omitempty,min=1,max=10000"`
	Source            null.String `json:"source" validate:"omitempty,oneof=MANUAL SENSOR PLC"`
}

type QualityDTO struct {
	IdempotencyKey    string      `json:"idempotency_key" validate:"required,idem_key"`
	ProductionOrderID string      `json:"production_order_id" validate:"required,uuid"`
	ProcessStepID     string      `json:"process_step_id" validate:"required,uuid"`
	WorkcenterID      string      `json:"workcenter_id" validate:"required,uuid"`
	OperatorID        string      `json:"operator_id" validate:"required,max=100"`
	LotID             null.String `json:"lot_id" validate:"omitempty,uuid"`
	Disposition       string      `json:"disposition" validate:"required,disposition"`
	ReasonCode        string      `json:"reason_code" validate:"required,max=50"`
	Qty               int         `json:"qty" validate:"required,gt=0"`
	Notes             null.String `json:"notes" validate:"omitempty,max=1000"`
}

type CompleteStepDTO struct {
	IdempotencyKey    null.String `json:"idempotency_key" validate:"omitempty,idem_key"`
	ProductionOrderID string      `json:"production_order_id" validate:"required,uuid"`
	ProcessStepID     string      `json:"process_step_id" validate:"required,uuid"`
	WorkcenterID      string      `json:"workcenter_id" validate:"required,uuid"`
	OperatorID        null.String `json:"operator_id" validate:"omitempty,max=100"`
	GoodQty           null.Int    `json:"good_qty" validate:"omitempty,min=0"`
}

// StepExecutionDTO - состояние агрегата после события.
type StepExecutionDTO struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	OperatorID    string     `json:"operator_id"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	PlannedQty    int        `json:"planned_qty"`
	ExecutedQty   int        `json:"executed_qty"`
	GoodQty       int        `json:"good_qty"`
	ScrapQty      int        `json:"scrap_qty"`
	ReuseQty      int        `json:"reuse_qty"`
	WorkcenterID  string     `json:"workcenter_id"`
	ProcessStepID string     `json:"process_step_id"`
}

// OrderTotalsDTO - статус и итоги заказа после пересчета.
type OrderTotalsDTO struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	PlannedQty       int    `json:"planned_qty"`
	ExecutedGoodQty  int    `json:"executed_good_qty"`
	ExecutedTotalQty int    `json:"executed_total_qty"`
	ScrapQty         int    `json:"scrap_qty"`
}

// ExecutionResultDTO - ответ на событие. Сохраняется в кеше и журнале
// и возвращается как есть при повторной отправке с тем же ключом.
type ExecutionResultDTO struct {
	EventID               string            `json:"event_id"`
	EventType             string            `json:"event_type"`
	IdempotencyKey        string            `json:"idempotency_key,omitempty"`
	ProductionOrderID     string            `json:"production_order_id"`
	ProcessStepID         string            `json:"process_step_id,omitempty"`
	WorkcenterID          string            `json:"workcenter_id,omitempty"`
	LotID                 string            `json:"lot_id,omitempty"`
	Timestamp             time.Time         `json:"ts"`
	StepExecution         *StepExecutionDTO `json:"step_execution,omitempty"`
	Order                 *OrderTotalsDTO   `json:"order,omitempty"`
	QualityRecordID       string            `json:"quality_record_id,omitempty"`
	ReplenishmentSignaled bool              `json:"replenishment_signaled,omitempty"`
	Replayed              bool              `json:"replayed"`
}
