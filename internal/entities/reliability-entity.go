package entities

import (
	"sort"
	"time"
)

// Failure - внеплановый простой рабочего центра. Открытый отказ имеет EndTs == nil.
type Failure struct {
	WorkcenterID   string
	WorkcenterCode string
	StartTs        time.Time
	EndTs          *time.Time
}

type WorkcenterRepairs struct {
	WorkcenterID   string  `json:"workcenter_id"`
	WorkcenterCode string  `json:"workcenter_code"`
	Repairs        int     `json:"repairs"`
	MTTRMinutes    float64 `json:"mttr_minutes"`
}

type MTTRResult struct {
	From                 time.Time           `json:"from"`
	To                   time.Time           `json:"to"`
	MTTRSeconds          float64             `json:"mttr_seconds"`
	MTTRMinutes          float64             `json:"mttr_minutes"`
	MTTRHours            float64             `json:"mttr_hours"`
	TotalRepairs         int                 `json:"total_repairs"`
	TotalRepairTimeHours float64             `json:"total_repair_time_hours"`
	ByWorkcenter         []WorkcenterRepairs `json:"by_workcenter"`
}

type WorkcenterFailures struct {
	WorkcenterID   string  `json:"workcenter_id"`
	WorkcenterCode string  `json:"workcenter_code"`
	Failures       int     `json:"failures"`
	MTBFHours      float64 `json:"mtbf_hours"`
}

type MTBFResult struct {
	From           time.Time            `json:"from"`
	To             time.Time            `json:"to"`
	MTBFHours      float64              `json:"mtbf_hours"`
	MTBFDays       float64              `json:"mtbf_days"`
	TotalFailures  int                  `json:"total_failures"`
	OperatingHours float64              `json:"operating_hours"`
	ByWorkcenter   []WorkcenterFailures `json:"by_workcenter"`
}

// CalculateMTTR - среднее время восстановления по отказам, закрытым в [from, to).
func CalculateMTTR(failures []Failure, from, to time.Time) MTTRResult {
	res := MTTRResult{From: from, To: to, ByWorkcenter: []WorkcenterRepairs{}}

	type acc struct {
		code    string
		repairs int
		total   time.Duration
	}
	perWC := map[string]*acc{}
	var total time.Duration
	for _, f := range failures {
		if f.EndTs == nil || f.EndTs.Before(from) || !f.EndTs.Before(to) {
			continue
		}
		repair := f.EndTs.Sub(f.StartTs)
		if repair < 0 {
			continue
		}
		total += repair
		res.TotalRepairs++

		a, ok := perWC[f.WorkcenterID]
		if !ok {
			a = &acc{code: f.WorkcenterCode}
			perWC[f.WorkcenterID] = a
		}
		a.repairs++
		a.total += repair
	}

	if res.TotalRepairs > 0 {
		mean := total / time.Duration(res.TotalRepairs)
		res.MTTRSeconds = mean.Seconds()
		res.MTTRMinutes = mean.Minutes()
		res.MTTRHours = mean.Hours()
	}
	res.TotalRepairTimeHours = total.Hours()

	for id, a := range perWC {
		res.ByWorkcenter = append(res.ByWorkcenter, WorkcenterRepairs{
			WorkcenterID:   id,
			WorkcenterCode: a.code,
			Repairs:        a.repairs,
			MTTRMinutes:    (a.total / time.Duration(a.repairs)).Minutes(),
		})
	}
	sort.Slice(res.ByWorkcenter, func(i, j int) bool {
		return res.ByWorkcenter[i].WorkcenterCode < res.ByWorkcenter[j].WorkcenterCode
	})
	return res
}

// CalculateMTBF - наработка на отказ по отказам, начавшимся в [from, to).
// Без отказов MTBF равен длине периода.
func CalculateMTBF(failures []Failure, from, to time.Time) MTBFResult {
	period := to.Sub(from).Hours()
	res := MTBFResult{From: from, To: to, OperatingHours: period, ByWorkcenter: []WorkcenterFailures{}}

	type acc struct {
		code     string
		failures int
	}
	perWC := map[string]*acc{}
	for _, f := range failures {
		if f.StartTs.Before(from) || !f.StartTs.Before(to) {
			continue
		}
		res.TotalFailures++
		a, ok := perWC[f.WorkcenterID]
		if !ok {
			a = &acc{code: f.WorkcenterCode}
			perWC[f.WorkcenterID] = a
		}
		a.failures++
	}

	res.MTBFHours = period
	if res.TotalFailures > 0 {
		res.MTBFHours = period / float64(res.TotalFailures)
	}
	res.MTBFDays = res.MTBFHours / 24

	for id, a := range perWC {
		res.ByWorkcenter = append(res.ByWorkcenter, WorkcenterFailures{
			WorkcenterID:   id,
			WorkcenterCode: a.code,
			Failures:       a.failures,
			MTBFHours:      period / float64(a.failures),
		})
	}
	sort.Slice(res.ByWorkcenter, func(i, j int) bool {
		return res.ByWorkcenter[i].WorkcenterCode < res.ByWorkcenter[j].WorkcenterCode
	})
	return res
}
