package entities

import "time"

type ProductionOrder struct {
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
}

// OrderFilter - параметры поиска заказов.
type OrderFilter struct {
	Status       []string
	Type         string
	ErpOrderCode string
	DueFrom      *time.Time
	DueTo        *time.Time
	Limit        uint64
	Offset       uint64
}
