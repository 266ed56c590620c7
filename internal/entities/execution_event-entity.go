package entities

import (
	"encoding/json"
	"time"
)

// ExecutionEvent - неизменяемая запись журнала исполнения.
type ExecutionEvent struct {
	ID                string          `json:"id"`
	IdempotencyKey    *string         `json:"idempotency_key,omitempty"`
	EventType         string          `json:"event_type"`
	ProductionOrderID string          `json:"production_order_id"`
	ProcessStepID     *string         `json:"process_step_id,omitempty"`
	WorkcenterID      *string         `json:"workcenter_id,omitempty"`
	OperatorID        *string         `json:"operator_id,omitempty"`
	LotID             *string         `json:"lot_id,omitempty"`
	Timestamp         time.Time       `json:"ts"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	Result            json.RawMessage `json:"result,omitempty"`
}

type EventFilter struct {
	EventTypes        []string
	ProductionOrderID string
	LotID             string
	WorkcenterID      string
	From              *time.Time
	To                *time.Time
	Limit             uint64
	Offset            uint64
}

type QualityRecord struct {
	ID                string    `json:"id"`
	ExecutionEventID  string    `json:"execution_event_id"`
	ProductionOrderID string    `json:"production_order_id"`
	LotID             *string   `json:"lot_id,omitempty"`
	ProcessStepID     *string   `json:"process_step_id,omitempty"`
	WorkcenterID      *string   `json:"workcenter_id,omitempty"`
	OperatorID        *string   `json:"operator_id,omitempty"`
	Disposition       string    `json:"disposition"`
	ReasonCode        string    `json:"reason_code"`
	Qty               int       `json:"qty"`
	Notes             *string   `json:"notes,omitempty"`
	Timestamp         time.Time `json:"ts"`
}

type QualitySummaryFilter struct {
	ProductionOrderID string
	WorkcenterID      string
	From              *time.Time
	To                *time.Time
}

// QualitySummaryRow - итог по паре (решение, причина).
type QualitySummaryRow struct {
	Disposition string `json:"disposition"`
	ReasonCode  string `json:"reason_code"`
	Qty         int    `json:"qty"`
	Records     int    `json:"records"`
}
