package dto

import "mes-system/internal/entities"

// OEEQueryDTO - запрос расчета OEE за смену. Date в формате YYYY-MM-DD.
type OEEQueryDTO struct {
	WorkcenterID string `json:"workcenter_id" query:"workcenter_id" validate:"required,uuid"`
	Date         string `json:"date" query:"date" validate:"required,datetime=2006-01-02"`
	ShiftNumber  int    `json:"shift_number" query:"shift" validate:"required,min=1,max=9"`
	Persist      bool   `json:"persist" query:"persist"`
}

type OEERangeQueryDTO struct {
	WorkcenterID string `json:"workcenter_id" query:"workcenter_id" validate:"required,uuid"`
	From         string `json:"from" query:"from" validate:"required,datetime=2006-01-02"`
	To           string `json:"to" query:"to" validate:"required,datetime=2006-01-02"`
}

// OEERangeDTO - агрегат за период плюс разбивка по сменам.
type OEERangeDTO struct {
	WorkcenterID string               `json:"workcenter_id"`
	From         string               `json:"from"`
	To           string               `json:"to"`
	Total        entities.OEEResult   `json:"total"`
	Shifts       []entities.OEEResult `json:"shifts"`
}

// ReliabilityQueryDTO - окно MTTR/MTBF: последние Days суток, по умолчанию 30.
type ReliabilityQueryDTO struct {
	WorkcenterID string `json:"workcenter_id" query:"workcenter_id" validate:"omitempty,uuid"`
	Days         int    `json:"days" query:"days" validate:"omitempty,min=1,max=365"`
}
