package events

import (
	"time"

	"mes-system/pkg/constants"
)

// Событие исполнения публикуется только после коммита транзакции.
// При повторной отправке с тем же ключом событие не публикуется.

type OrderImportedEvent struct {
	ProductionOrderID string    `json:"production_order_id"`
	ErpOrderCode      string    `json:"erp_order_code"`
	OrderType         string    `json:"order_type"`
	PlannedQty        int       `json:"planned_qty"`
	Created           bool      `json:"created"`
	Timestamp         time.Time `json:"ts"`
}

func (e OrderImportedEvent) Name() string { return constants.DomainEventOpImported }

type BarcodeScannedEvent struct {
	EventID           string    `json:"event_id"`
	ProductionOrderID string    `json:"production_order_id"`
	ProcessStepID     string    `json:"process_step_id"`
	WorkcenterID      string    `json:"workcenter_id"`
	LotID             string    `json:"lot_id"`
	OperatorID        string    `json:"operator_id"`
	Timestamp         time.Time `json:"ts"`
}

func (e BarcodeScannedEvent) Name() string { return constants.DomainEventBarcodeScanned }

type StepStartedEvent struct {
	EventID           string    `json:"event_id"`
	ProductionOrderID string    `json:"production_order_id"`
	ProcessStepID     string    `json:"process_step_id"`
	WorkcenterID      string    `json:"workcenter_id"`
	OperatorID        string    `json:"operator_id"`
	Reopened          bool      `json:"reopened"`
	Timestamp         time.Time `json:"ts"`
}

func (e StepStartedEvent) Name() string { return constants.DomainEventStepStarted }

type PieceCountedEvent struct {
	EventID           string    `json:"event_id"`
	ProductionOrderID string    `json:"production_order_id"`
	ProcessStepID     string    `json:"process_step_id"`
	WorkcenterID      string    `json:"workcenter_id"`
	Pieces            int       `json:"pieces"`
	ExecutedQty       int       `json:"executed_qty"`
	OrderStatus       string    `json:"order_status"`
	Timestamp         time.Time `json:"ts"`
}

func (e PieceCountedEvent) Name() string { return constants.DomainEventPieceCounted }

type QualityRecordedEvent struct {
	EventID           string    `json:"event_id"`
	QualityRecordID   string    `json:"quality_record_id"`
	ProductionOrderID string    `json:"production_order_id"`
	ProcessStepID     string    `json:"process_step_id"`
	WorkcenterID      string    `json:"workcenter_id"`
	Disposition       string    `json:"disposition"`
	ReasonCode        string    `json:"reason_code"`
	Qty               int       `json:"qty"`
	Timestamp         time.Time `json:"ts"`
}

func (e QualityRecordedEvent) Name() string { return constants.DomainEventQualityRecorded }

type StepCompletedEvent struct {
	EventID           string    `json:"event_id"`
	ProductionOrderID string    `json:"production_order_id"`
	ProcessStepID     string    `json:"process_step_id"`
	WorkcenterID      string    `json:"workcenter_id"`
	GoodQty           int       `json:"good_qty"`
	ScrapQty          int       `json:"scrap_qty"`
	OrderStatus       string    `json:"order_status"`
	Timestamp         time.Time `json:"ts"`
}

func (e StepCompletedEvent) Name() string { return constants.DomainEventStepCompleted }

// ReplenishmentSignaledEvent - брак по заказу превысил порог.
type ReplenishmentSignaledEvent struct {
	ProductionOrderID string    `json:"production_order_id"`
	ScrapQty          int       `json:"scrap_qty"`
	PlannedQty        int       `json:"planned_qty"`
	Threshold         float64   `json:"threshold"`
	Timestamp         time.Time `json:"ts"`
}

func (e ReplenishmentSignaledEvent) Name() string { return constants.DomainEventReplenishmentSignaled }
