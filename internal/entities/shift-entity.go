package entities

import (
	"fmt"
	"time"
)

// ShiftSchedule - смена рабочего центра. DayOfWeek: 0 - воскресенье.
// StartTime/EndTime в формате "HH:MM"; смена через полночь заканчивается на следующий день.
type ShiftSchedule struct {
	ID           string `json:"id"`
	WorkcenterID string `json:"workcenter_id"`
	DayOfWeek    int    `json:"day_of_week"`
	ShiftNumber  int    `json:"shift_number"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	IsActive     bool   `json:"is_active"`
}

// Window возвращает границы смены для календарной даты date в зоне loc.
func (s ShiftSchedule) Window(date time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	startH, startM, err := parseClock(s.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	endH, endM, err := parseClock(s.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	y, m, d := date.Date()
	start := time.Date(y, m, d, startH, startM, 0, 0, loc)
	end := time.Date(y, m, d, endH, endM, 0, 0, loc)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

// PlannedMinutes - длительность смены по настенным часам. В ночь перевода часов
// она не совпадает с разностью границ окна.
func (s ShiftSchedule) PlannedMinutes() (float64, error) {
	startH, startM, err := parseClock(s.StartTime)
	if err != nil {
		return 0, err
	}
	endH, endM, err := parseClock(s.EndTime)
	if err != nil {
		return 0, err
	}
	minutes := (endH*60 + endM) - (startH*60 + startM)
	if minutes <= 0 {
		minutes += 24 * 60
	}
	return float64(minutes), nil
}

func parseClock(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		if t, err = time.Parse("15:04:05", value); err != nil {
			return 0, 0, fmt.Errorf("неверное время смены %q: %w", value, err)
		}
	}
	return t.Hour(), t.Minute(), nil
}
