package entities

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"mes-system/pkg/constants"
	apperrors "mes-system/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func newStarted() *StepExecution {
	return StartStepExecution(StepKey{ProductionOrderID: "op", ProcessStepID: "st", WorkcenterID: "wc"}, "u1", 100, now)
}

func TestStepExecutionLifecycle(t *testing.T) {
	s := newStarted()
	assert.Equal(t, constants.StepStatusInProgress, s.Status)
	assert.Equal(t, 100, s.PlannedQty)

	require.NoError(t, s.Count(1, now))
	require.NoError(t, s.Count(4, now))
	assert.Equal(t, 5, s.ExecutedQty)
	assert.Equal(t, 5, s.GoodQty)

	err := s.Reopen("u2", now)
	assert.Equal(t, apperrors.CodeConflictIdempotency, apperrors.CodeOf(err))

	require.NoError(t, s.Complete(nil, now))
	assert.True(t, s.IsCompleted())
	require.NotNil(t, s.CompletedAt)

	err = s.Complete(nil, now)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	err = s.Count(2, now)
	assert.Equal(t, apperrors.CodeConflictIdempotency, apperrors.CodeOf(err), "завершенный шаг не считает детали")
	assert.Equal(t, 5, s.ExecutedQty)

	later := now.Add(time.Hour)
	require.NoError(t, s.Reopen("u2", later))
	assert.Equal(t, constants.StepStatusInProgress, s.Status)
	assert.Nil(t, s.CompletedAt)
	assert.Equal(t, now, s.StartedAt)
	assert.Equal(t, "u2", s.OperatorID)
	assert.Equal(t, 5, s.GoodQty)

	require.NoError(t, s.Count(2, later))
	assert.Equal(t, 7, s.GoodQty)
}

func TestCounterConservation(t *testing.T) {
	s := newStarted()
	steps := []func() error{
		func() error { return s.Count(10, now) },
		func() error { return s.ApplyQuality(constants.DispositionScrap, 3, now) },
		func() error { return s.ApplyQuality(constants.DispositionReuse, 2, now) },
		func() error { return s.Count(1, now) },
		func() error { return s.ApplyQuality(constants.DispositionScrap, 6, now) },
	}
	for _, step := range steps {
		require.NoError(t, step())
		assert.True(t, s.Balanced(), "executed=%d good=%d scrap=%d", s.ExecutedQty, s.GoodQty, s.ScrapQty)
	}
	assert.Equal(t, 9, s.ExecutedQty)
	assert.Equal(t, 0, s.GoodQty)
	assert.Equal(t, 9, s.ScrapQty)
	assert.Equal(t, 2, s.ReuseQty)
}

func TestApplyQualityRejectsOverScrapAndBadInput(t *testing.T) {
	s := newStarted()
	require.NoError(t, s.Count(2, now))

	err := s.ApplyQuality(constants.DispositionScrap, 3, now)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
	assert.Equal(t, 2, s.GoodQty)

	assert.Error(t, s.ApplyQuality(constants.DispositionScrap, 0, now))
	assert.Error(t, s.ApplyQuality("MAYBE", 1, now))
	assert.True(t, s.Balanced())
}

func TestCompleteWithGoodQty(t *testing.T) {
	s := newStarted()
	require.NoError(t, s.Count(3, now))

	lower := 2
	err := s.Complete(&lower, now)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
	assert.False(t, s.IsCompleted())

	higher := 5
	require.NoError(t, s.Complete(&higher, now))
	assert.Equal(t, 5, s.GoodQty)
	assert.Equal(t, 5, s.ExecutedQty)
	assert.True(t, s.Balanced())
}

func TestCountRejectsNonPositive(t *testing.T) {
	s := newStarted()
	assert.Error(t, s.Count(0, now))
}

func TestCalculateOEEWorkedExample(t *testing.T) {
	res := CalculateOEE(OEEInputs{
		PlannedTimeMin: 480,
		DowntimeMin:    30,
		TotalPieces:    100,
		GoodPieces:     95,
		IdealTimeMin:   400,
	})

	assert.InDelta(t, 450, res.OperatingTimeMin, 1e-9)
	assert.InDelta(t, 0.9375, res.Availability, 1e-4)
	assert.InDelta(t, 4, res.IdealCycleTimeMin, 1e-9)
	assert.InDelta(t, 0.8889, res.Performance, 1e-4)
	assert.InDelta(t, 0.95, res.Quality, 1e-9)
	assert.InDelta(t, 0.7917, res.OEE, 1e-4)
}

func TestCalculateOEEZeroGuards(t *testing.T) {
	res := CalculateOEE(OEEInputs{PlannedTimeMin: 60, DowntimeMin: 60, TotalPieces: 0})
	assert.Equal(t, 0.0, res.Availability)
	assert.Equal(t, 0.0, res.Performance)
	assert.Equal(t, 0.0, res.Quality)
	assert.Equal(t, 0.0, res.OEE)
}

func TestShiftWindow(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	day := ShiftSchedule{StartTime: "08:00", EndTime: "16:00"}
	start, end, err := day.Window(date, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 480.0, end.Sub(start).Minutes())

	night := ShiftSchedule{StartTime: "22:00", EndTime: "06:00:00"}
	start, end, err = night.Window(date, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 4, start.Day())
	assert.Equal(t, 5, end.Day())
	assert.Equal(t, 480.0, end.Sub(start).Minutes())

	_, _, err = ShiftSchedule{StartTime: "8am", EndTime: "16:00"}.Window(date, time.UTC)
	assert.Error(t, err)
}

func TestShiftWindowAcrossClockChange(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	night := ShiftSchedule{StartTime: "22:00", EndTime: "06:00"}

	tests := []struct {
		name    string
		date    time.Time
		elapsed float64
	}{
		{name: "переход на летнее время", date: time.Date(2026, 3, 28, 0, 0, 0, 0, berlin), elapsed: 420},
		{name: "переход на зимнее время", date: time.Date(2026, 10, 24, 0, 0, 0, 0, berlin), elapsed: 540},
		{name: "обычная ночь", date: time.Date(2026, 10, 20, 0, 0, 0, 0, berlin), elapsed: 480},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := night.Window(tt.date, berlin)
			require.NoError(t, err)
			assert.Equal(t, 22, start.Hour())
			assert.Equal(t, 6, end.Hour(), "конец смены по местным часам")
			assert.Equal(t, tt.date.Day()+1, end.Day())
			assert.Equal(t, tt.elapsed, end.Sub(start).Minutes())

			planned, err := night.PlannedMinutes()
			require.NoError(t, err)
			assert.Equal(t, 480.0, planned)
		})
	}

	_, err = ShiftSchedule{StartTime: "08:00", EndTime: "x"}.PlannedMinutes()
	assert.Error(t, err)
}

func TestDowntimeOverlap(t *testing.T) {
	from := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	to := from.Add(8 * time.Hour)
	at := func(h, m int) time.Time { return time.Date(2024, 3, 4, h, m, 0, 0, time.UTC) }
	ptr := func(t time.Time) *time.Time { return &t }

	inside := DowntimeEvent{StartTs: at(9, 0), EndTs: ptr(at(9, 30))}
	assert.Equal(t, 30.0, inside.OverlapMinutes(from, to, to))

	clipped := DowntimeEvent{StartTs: at(7, 0), EndTs: ptr(at(8, 15))}
	assert.Equal(t, 15.0, clipped.OverlapMinutes(from, to, to))

	open := DowntimeEvent{StartTs: at(15, 0)}
	assert.Equal(t, 30.0, open.OverlapMinutes(from, to, at(15, 30)))

	outside := DowntimeEvent{StartTs: at(17, 0), EndTs: ptr(at(18, 0))}
	assert.Equal(t, 0.0, outside.OverlapMinutes(from, to, to))
}

func TestCalculateMTTR(t *testing.T) {
	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 30)
	ptr := func(t time.Time) *time.Time { return &t }
	repair := func(wc, code string, start time.Time, d time.Duration) Failure {
		return Failure{WorkcenterID: wc, WorkcenterCode: code, StartTs: start, EndTs: ptr(start.Add(d))}
	}
	day := func(n int) time.Time { return from.AddDate(0, 0, n) }

	tests := []struct {
		name     string
		failures []Failure
		repairs  int
		mttrMin  float64
		totalH   float64
		perWC    []WorkcenterRepairs
	}{
		{name: "нет отказов", perWC: []WorkcenterRepairs{}},
		{
			name: "два центра",
			failures: []Failure{
				repair("wc-2", "SAW", day(1), 30*time.Minute),
				repair("wc-1", "LATHE", day(2), 60*time.Minute),
				repair("wc-1", "LATHE", day(3), 120*time.Minute),
			},
			repairs: 3, mttrMin: 70, totalH: 3.5,
			perWC: []WorkcenterRepairs{
				{WorkcenterID: "wc-1", WorkcenterCode: "LATHE", Repairs: 2, MTTRMinutes: 90},
				{WorkcenterID: "wc-2", WorkcenterCode: "SAW", Repairs: 1, MTTRMinutes: 30},
			},
		},
		{
			name: "открытые и закрытые вне периода не считаются",
			failures: []Failure{
				{WorkcenterID: "wc-1", WorkcenterCode: "LATHE", StartTs: day(5)},
				repair("wc-1", "LATHE", from.Add(-2*time.Hour), time.Hour),
				repair("wc-1", "LATHE", to.Add(-10*time.Minute), 20*time.Minute),
				repair("wc-1", "LATHE", from.Add(-30*time.Minute), 60*time.Minute),
			},
			repairs: 1, mttrMin: 60, totalH: 1,
			perWC: []WorkcenterRepairs{{WorkcenterID: "wc-1", WorkcenterCode: "LATHE", Repairs: 1, MTTRMinutes: 60}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CalculateMTTR(tt.failures, from, to)
			assert.Equal(t, tt.repairs, res.TotalRepairs)
			assert.InDelta(t, tt.mttrMin, res.MTTRMinutes, 1e-9)
			assert.InDelta(t, tt.mttrMin*60, res.MTTRSeconds, 1e-9)
			assert.InDelta(t, tt.mttrMin/60, res.MTTRHours, 1e-9)
			assert.InDelta(t, tt.totalH, res.TotalRepairTimeHours, 1e-9)
			assert.Equal(t, tt.perWC, res.ByWorkcenter)
		})
	}
}

func TestCalculateMTBF(t *testing.T) {
	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 30)
	fail := func(wc, code string, start time.Time) Failure {
		return Failure{WorkcenterID: wc, WorkcenterCode: code, StartTs: start}
	}

	tests := []struct {
		name     string
		failures []Failure
		total    int
		mtbfH    float64
		perWC    []WorkcenterFailures
	}{
		{name: "без отказов MTBF равен периоду", total: 0, mtbfH: 720, perWC: []WorkcenterFailures{}},
		{
			name: "отказы по центрам",
			failures: []Failure{
				fail("wc-1", "LATHE", from.Add(time.Hour)),
				fail("wc-1", "LATHE", from.AddDate(0, 0, 10)),
				fail("wc-2", "SAW", from.AddDate(0, 0, 20)),
				fail("wc-2", "SAW", from.Add(-time.Hour)),
				fail("wc-2", "SAW", to),
			},
			total: 3, mtbfH: 240,
			perWC: []WorkcenterFailures{
				{WorkcenterID: "wc-1", WorkcenterCode: "LATHE", Failures: 2, MTBFHours: 360},
				{WorkcenterID: "wc-2", WorkcenterCode: "SAW", Failures: 1, MTBFHours: 720},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CalculateMTBF(tt.failures, from, to)
			assert.Equal(t, tt.total, res.TotalFailures)
			assert.InDelta(t, 720, res.OperatingHours, 1e-9)
			assert.InDelta(t, tt.mtbfH, res.MTBFHours, 1e-9)
			assert.InDelta(t, tt.mtbfH/24, res.MTBFDays, 1e-9)
			assert.Equal(t, tt.perWC, res.ByWorkcenter)
		})
	}
}

func TestWorkcenterAcceptsStep(t *testing.T) {
	step := "s1"
	assert.True(t, (&Workcenter{}).AcceptsStep("any"))
	assert.True(t, (&Workcenter{ProcessStepID: &step}).AcceptsStep("s1"))
	assert.False(t, (&Workcenter{ProcessStepID: &step}).AcceptsStep("s2"))
}
