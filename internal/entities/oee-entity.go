package entities

import "time"

// OEEInputs - сырые величины, из которых считается OEE.
type OEEInputs struct {
	PlannedTimeMin    float64
	DowntimeMin       float64
	PlannedDowntime   float64
	UnplannedDowntime float64
	TotalPieces       int
	GoodPieces        int
	// IdealTimeMin - сумма executedQty * cycleTime по выполнениям.
	IdealTimeMin float64
}

// Add суммирует входные данные нескольких смен.
func (in OEEInputs) Add(other OEEInputs) OEEInputs {
	return OEEInputs{
		PlannedTimeMin:    in.PlannedTimeMin + other.PlannedTimeMin,
		DowntimeMin:       in.DowntimeMin + other.DowntimeMin,
		PlannedDowntime:   in.PlannedDowntime + other.PlannedDowntime,
		UnplannedDowntime: in.UnplannedDowntime + other.UnplannedDowntime,
		TotalPieces:       in.TotalPieces + other.TotalPieces,
		GoodPieces:        in.GoodPieces + other.GoodPieces,
		IdealTimeMin:      in.IdealTimeMin + other.IdealTimeMin,
	}
}

type OEEResult struct {
	WorkcenterID      string    `json:"workcenter_id"`
	Date              string    `json:"date"`
	ShiftNumber       int       `json:"shift_number"`
	WindowStart       time.Time `json:"window_start"`
	WindowEnd         time.Time `json:"window_end"`
	PlannedTimeMin    float64   `json:"planned_time_min"`
	DowntimeMin       float64   `json:"downtime_min"`
	PlannedDowntime   float64   `json:"planned_downtime_min"`
	UnplannedDowntime float64   `json:"unplanned_downtime_min"`
	OperatingTimeMin  float64   `json:"operating_time_min"`
	TotalPieces       int       `json:"total_pieces"`
	GoodPieces        int       `json:"good_pieces"`
	IdealCycleTimeMin float64   `json:"ideal_cycle_time_min"`
	Availability      float64   `json:"availability"`
	Performance       float64   `json:"performance"`
	Quality           float64   `json:"quality"`
	OEE               float64   `json:"oee"`
}

// CalculateOEE применяет формулы A*P*Q к сырым величинам.
func CalculateOEE(in OEEInputs) OEEResult {
	res := OEEResult{
		PlannedTimeMin:    in.PlannedTimeMin,
		DowntimeMin:       in.DowntimeMin,
		PlannedDowntime:   in.PlannedDowntime,
		UnplannedDowntime: in.UnplannedDowntime,
		TotalPieces:       in.TotalPieces,
		GoodPieces:        in.GoodPieces,
	}
	res.OperatingTimeMin = in.PlannedTimeMin - in.DowntimeMin

	if in.PlannedTimeMin > 0 {
		res.Availability = res.OperatingTimeMin / in.PlannedTimeMin
	}
	if in.TotalPieces > 0 {
		res.IdealCycleTimeMin = in.IdealTimeMin / float64(in.TotalPieces)
		res.Quality = float64(in.GoodPieces) / float64(in.TotalPieces)
	}
	if res.OperatingTimeMin > 0 {
		res.Performance = float64(in.TotalPieces) * res.IdealCycleTimeMin / res.OperatingTimeMin
	}
	res.OEE = res.Availability * res.Performance * res.Quality
	return res
}

type OEESnapshot struct {
	ID               string    `json:"id"`
	WorkcenterID     string    `json:"workcenter_id"`
	Date             time.Time `json:"date"`
	ShiftNumber      int       `json:"shift_number"`
	Availability     float64   `json:"availability"`
	Performance      float64   `json:"performance"`
	Quality          float64   `json:"quality"`
	OEE              float64   `json:"oee"`
	PlannedTimeMin   float64   `json:"planned_time_min"`
	OperatingTimeMin float64   `json:"operating_time_min"`
	DowntimeMin      float64   `json:"downtime_min"`
	TotalPieces      int       `json:"total_pieces"`
	GoodPieces       int       `json:"good_pieces"`
	CalculatedAt     time.Time `json:"calculated_at"`
}

type OEEHistoryFilter struct {
	WorkcenterID string
	From         *time.Time
	To           *time.Time
	ShiftNumber  int
	Limit        uint64
	Offset       uint64
}

// ExecutionSample - выполнение шага с учетом нормативного времени цикла.
type ExecutionSample struct {
	ExecutedQty  int
	GoodQty      int
	CycleTimeMin float64
}
