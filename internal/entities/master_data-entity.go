package entities

import "time"

type Item struct {
	ID                   string   `json:"id"`
	Code                 string   `json:"code"`
	Name                 string   `json:"name"`
	StandardCycleTimeMin *float64 `json:"standard_cycle_time_min,omitempty"`
}

type ProcessStep struct {
	ID                   string   `json:"id"`
	Code                 string   `json:"code"`
	Name                 string   `json:"name"`
	Sequence             int      `json:"sequence"`
	StandardCycleTimeMin *float64 `json:"standard_cycle_time_min,omitempty"`
}

type Workcenter struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	Name           string     `json:"name"`
	IsEnabled      bool       `json:"is_enabled"`
	DisabledReason *string    `json:"disabled_reason,omitempty"`
	DisabledBy     *string    `json:"disabled_by,omitempty"`
	DisabledAt     *time.Time `json:"disabled_at,omitempty"`
	ProcessStepID  *string    `json:"process_step_id,omitempty"`
}

// AcceptsStep - рабочий центр без привязки принимает любой шаг.
func (w *Workcenter) AcceptsStep(stepID string) bool {
	return w.ProcessStepID == nil || *w.ProcessStepID == stepID
}

type Lot struct {
	ID                string    `json:"id"`
	LotCode           string    `json:"lot_code"`
	ProductionOrderID string    `json:"production_order_id"`
	Quantity          int       `json:"quantity"`
	CreatedAt         time.Time `json:"created_at"`
}

type DowntimeEvent struct {
	ID           string     `json:"id"`
	WorkcenterID string     `json:"workcenter_id"`
	StartTs      time.Time  `json:"start_ts"`
	EndTs        *time.Time `json:"end_ts,omitempty"`
	DowntimeType string     `json:"downtime_type"`
	ReasonCode   *string    `json:"reason_code,omitempty"`
}

// OverlapMinutes возвращает длительность простоя внутри окна [from, to).
// Открытый простой считается длящимся до openEnd.
func (d DowntimeEvent) OverlapMinutes(from, to, openEnd time.Time) float64 {
	end := openEnd
	if d.EndTs != nil {
		end = *d.EndTs
	}
	start := d.StartTs
	if start.Before(from) {
		start = from
	}
	if end.After(to) {
		end = to
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Minutes()
}
