package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mes-system/internal/dto"
	"mes-system/internal/entities"
	"mes-system/internal/repositories"
	"mes-system/pkg/constants"
	apperrors "mes-system/pkg/errors"
	"mes-system/pkg/metrics"
)

const (
	dateLayout       = "2006-01-02"
	maxRangeDays     = 93
	rangeParallelism = 4
	oeeExportSheet   = "OEE"
	oeeExportMaxRows = 10000
	// reliabilityDefaultDays - окно MTTR/MTBF, если days не задан.
	reliabilityDefaultDays = 30
)

type OEEServiceInterface interface {
	Calculate(ctx context.Context, req dto.OEEQueryDTO) (*entities.OEEResult, error)
	CalculateRange(ctx context.Context, req dto.OEERangeQueryDTO) (*dto.OEERangeDTO, error)
	StoreSnapshot(ctx context.Context, result *entities.OEEResult) (*entities.OEESnapshot, error)
	History(ctx context.Context, filter entities.OEEHistoryFilter) (*dto.ListResponse[entities.OEESnapshot], error)
	ExportHistory(ctx context.Context, filter entities.OEEHistoryFilter, w io.Writer) error
	// SnapshotActiveShifts сохраняет снимки уже начавшихся смен дня day для всех включенных рабочих центров.
	SnapshotActiveShifts(ctx context.Context, day time.Time) (int, error)
	MTTR(ctx context.Context, req dto.ReliabilityQueryDTO) (*entities.MTTRResult, error)
	MTBF(ctx context.Context, req dto.ReliabilityQueryDTO) (*entities.MTBFResult, error)
}

// OEEService только читает данные исполнения и может работать параллельно с приемом событий.
type OEEService struct {
	shiftRepo      repositories.ShiftScheduleRepositoryInterface
	downtimeRepo   repositories.DowntimeRepositoryInterface
	executionRepo  repositories.StepExecutionRepositoryInterface
	snapshotRepo   repositories.OEESnapshotRepositoryInterface
	workcenterRepo repositories.WorkcenterRepositoryInterface
	location       *time.Location
	logger         *zap.Logger
	now            func() time.Time
}

func NewOEEService(
	shiftRepo repositories.ShiftScheduleRepositoryInterface,
	downtimeRepo repositories.DowntimeRepositoryInterface,
	executionRepo repositories.StepExecutionRepositoryInterface,
	snapshotRepo repositories.OEESnapshotRepositoryInterface,
	workcenterRepo repositories.WorkcenterRepositoryInterface,
	location *time.Location,
	logger *zap.Logger,
) OEEServiceInterface {
	if location == nil {
		location = time.Local
	}
	return &OEEService{
		shiftRepo:      shiftRepo,
		downtimeRepo:   downtimeRepo,
		executionRepo:  executionRepo,
		snapshotRepo:   snapshotRepo,
		workcenterRepo: workcenterRepo,
		location:       location,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *OEEService) parseDate(value string) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, value, s.location)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError("неверная дата %q, ожидается YYYY-MM-DD", value)
	}
	return day, nil
}

func (s *OEEService) Calculate(ctx context.Context, req dto.OEEQueryDTO) (*entities.OEEResult, error) {
	day, err := s.parseDate(req.Date)
	if err != nil {
		return nil, err
	}

	shift, err := s.shiftRepo.FindActive(ctx, req.WorkcenterID, int(day.Weekday()), req.ShiftNumber)
	if err != nil {
		if errors.Is(err, apperrors.ErrShiftNotFound) {
			return nil, apperrors.NewFatalError(apperrors.ErrShiftNotFound,
				"нет активной смены %d для рабочего центра на %s", req.ShiftNumber, req.Date)
		}
		return nil, err
	}

	_, result, err := s.calculateShift(ctx, req.WorkcenterID, day, *shift)
	if err != nil {
		return nil, err
	}
	s.exportGauges(result)

	if req.Persist {
		if _, err := s.StoreSnapshot(ctx, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// calculateShift собирает сырые величины окна смены и применяет формулы.
func (s *OEEService) calculateShift(ctx context.Context, workcenterID string, day time.Time, shift entities.ShiftSchedule) (entities.OEEInputs, *entities.OEEResult, error) {
	var in entities.OEEInputs

	start, end, err := shift.Window(day, s.location)
	if err != nil {
		return in, nil, apperrors.NewFatalError(err, "неверное расписание смены %d", shift.ShiftNumber)
	}
	if in.PlannedTimeMin, err = shift.PlannedMinutes(); err != nil {
		return in, nil, apperrors.NewFatalError(err, "неверное расписание смены %d", shift.ShiftNumber)
	}

	downtimes, err := s.downtimeRepo.ListOverlapping(ctx, workcenterID, start, end)
	if err != nil {
		return in, nil, err
	}
	openEnd := s.now()
	if openEnd.After(end) {
		openEnd = end
	}
	for _, d := range downtimes {
		minutes := d.OverlapMinutes(start, end, openEnd)
		in.DowntimeMin += minutes
		if d.DowntimeType == constants.DowntimePlanned {
			in.PlannedDowntime += minutes
		} else {
			in.UnplannedDowntime += minutes
		}
	}

	samples, err := s.executionRepo.SamplesInWindow(ctx, workcenterID, start, end)
	if err != nil {
		return in, nil, err
	}
	for _, sample := range samples {
		cycle := sample.CycleTimeMin
		if cycle <= 0 {
			cycle = constants.DefaultCycleTimeMin
		}
		in.TotalPieces += sample.ExecutedQty
		in.GoodPieces += sample.GoodQty
		in.IdealTimeMin += float64(sample.ExecutedQty) * cycle
	}

	result := entities.CalculateOEE(in)
	result.WorkcenterID = workcenterID
	result.Date = day.Format(dateLayout)
	result.ShiftNumber = shift.ShiftNumber
	result.WindowStart = start
	result.WindowEnd = end
	return in, &result, nil
}

// reliabilityWindow возвращает последние days суток до текущего момента.
func (s *OEEService) reliabilityWindow(days int) (time.Time, time.Time) {
	if days <= 0 {
		days = reliabilityDefaultDays
	}
	to := s.now().In(s.location)
	return to.AddDate(0, 0, -days), to
}

// MTTR считает отказами внеплановые простои, закрытые в окне.
func (s *OEEService) MTTR(ctx context.Context, req dto.ReliabilityQueryDTO) (*entities.MTTRResult, error) {
	from, to := s.reliabilityWindow(req.Days)
	failures, err := s.downtimeRepo.ListFailures(ctx, req.WorkcenterID, from, to)
	if err != nil {
		return nil, err
	}
	res := entities.CalculateMTTR(failures, from, to)
	s.logger.Debug("MTTR рассчитан",
		zap.String("workcenter_id", req.WorkcenterID),
		zap.Int("repairs", res.TotalRepairs),
		zap.Float64("mttr_minutes", res.MTTRMinutes))
	return &res, nil
}

// MTBF считает отказами внеплановые простои, начавшиеся в окне.
func (s *OEEService) MTBF(ctx context.Context, req dto.ReliabilityQueryDTO) (*entities.MTBFResult, error) {
	from, to := s.reliabilityWindow(req.Days)
	failures, err := s.downtimeRepo.ListFailures(ctx, req.WorkcenterID, from, to)
	if err != nil {
		return nil, err
	}
	res := entities.CalculateMTBF(failures, from, to)
	s.logger.Debug("MTBF рассчитан",
		zap.String("workcenter_id", req.WorkcenterID),
		zap.Int("failures", res.TotalFailures),
		zap.Float64("mtbf_hours", res.MTBFHours))
	return &res, nil
}

func (s *OEEService) exportGauges(result *entities.OEEResult) {
	shift := strconv.Itoa(result.ShiftNumber)
	metrics.OEE.WithLabelValues(result.WorkcenterID, shift).Set(result.OEE)
	metrics.Availability.WithLabelValues(result.WorkcenterID, shift).Set(result.Availability)
	metrics.Performance.WithLabelValues(result.WorkcenterID, shift).Set(result.Performance)
	metrics.Quality.WithLabelValues(result.WorkcenterID, shift).Set(result.Quality)
}

type shiftOutcome struct {
	inputs entities.OEEInputs
	result *entities.OEEResult
}

// CalculateRange считает все активные смены периода параллельно.
// Итог пересчитывается из суммы сырых величин, а не усреднением долей.
func (s *OEEService) CalculateRange(ctx context.Context, req dto.OEERangeQueryDTO) (*dto.OEERangeDTO, error) {
	from, err := s.parseDate(req.From)
	if err != nil {
		return nil, err
	}
	to, err := s.parseDate(req.To)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, apperrors.NewValidationError("дата окончания раньше даты начала")
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > maxRangeDays {
		return nil, apperrors.NewValidationError("период не может быть длиннее %d дней", maxRangeDays)
	}

	var (
		mu       sync.Mutex
		outcomes []shiftOutcome
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rangeParallelism)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		day := day
		g.Go(func() error {
			shifts, err := s.shiftRepo.ListActiveByDay(gctx, req.WorkcenterID, int(day.Weekday()))
			if err != nil {
				return err
			}
			for _, shift := range shifts {
				inputs, result, err := s.calculateShift(gctx, req.WorkcenterID, day, shift)
				if err != nil {
					return err
				}
				mu.Lock()
				outcomes = append(outcomes, shiftOutcome{inputs: inputs, result: result})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].result.WindowStart.Before(outcomes[j].result.WindowStart)
	})

	var total entities.OEEInputs
	shifts := make([]entities.OEEResult, 0, len(outcomes))
	for _, o := range outcomes {
		total = total.Add(o.inputs)
		shifts = append(shifts, *o.result)
	}
	totalResult := entities.CalculateOEE(total)
	totalResult.WorkcenterID = req.WorkcenterID
	totalResult.Date = req.From
	if len(outcomes) > 0 {
		totalResult.WindowStart = outcomes[0].result.WindowStart
		totalResult.WindowEnd = outcomes[len(outcomes)-1].result.WindowEnd
	}

	return &dto.OEERangeDTO{
		WorkcenterID: req.WorkcenterID,
		From:         req.From,
		To:           req.To,
		Total:        totalResult,
		Shifts:       shifts,
	}, nil
}

// StoreSnapshot идемпотентен: повтор с теми же ключами перезаписывает снимок.
func (s *OEEService) StoreSnapshot(ctx context.Context, result *entities.OEEResult) (*entities.OEESnapshot, error) {
	day, err := s.parseDate(result.Date)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshotRepo.Upsert(ctx, entities.OEESnapshot{
		WorkcenterID:     result.WorkcenterID,
		Date:             day,
		ShiftNumber:      result.ShiftNumber,
		Availability:     result.Availability,
		Performance:      result.Performance,
		Quality:          result.Quality,
		OEE:              result.OEE,
		PlannedTimeMin:   result.PlannedTimeMin,
		OperatingTimeMin: result.OperatingTimeMin,
		DowntimeMin:      result.DowntimeMin,
		TotalPieces:      result.TotalPieces,
		GoodPieces:       result.GoodPieces,
		CalculatedAt:     s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Снимок OEE сохранен",
		zap.String("workcenter_id", result.WorkcenterID),
		zap.String("date", result.Date),
		zap.Int("shift", result.ShiftNumber),
		zap.Float64("oee", result.OEE))
	return snap, nil
}

func (s *OEEService) History(ctx context.Context, filter entities.OEEHistoryFilter) (*dto.ListResponse[entities.OEESnapshot], error) {
	snaps, total, err := s.snapshotRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &dto.ListResponse[entities.OEESnapshot]{
		List:       snaps,
		Pagination: dto.NewPagination(total, filter.Limit, filter.Offset),
	}, nil
}

var oeeExportHeaders = []interface{}{
	"Рабочий центр", "Дата", "Смена", "Доступность", "Производительность", "Качество", "OEE",
	"План, мин", "Работа, мин", "Простой, мин", "Всего деталей", "Годных", "Рассчитано",
}

func (s *OEEService) ExportHistory(ctx context.Context, filter entities.OEEHistoryFilter, w io.Writer) error {
	filter.Limit = oeeExportMaxRows
	filter.Offset = 0
	snaps, _, err := s.snapshotRepo.List(ctx, filter)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName("Sheet1", oeeExportSheet)
	if err := f.SetSheetRow(oeeExportSheet, "A1", &oeeExportHeaders); err != nil {
		return err
	}
	style, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(oeeExportSheet, "A1", "M1", style)
	percent, _ := f.NewStyle(&excelize.Style{NumFmt: 10})

	for i, snap := range snaps {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			snap.WorkcenterID, snap.Date.Format(dateLayout), snap.ShiftNumber,
			snap.Availability, snap.Performance, snap.Quality, snap.OEE,
			snap.PlannedTimeMin, snap.OperatingTimeMin, snap.DowntimeMin,
			snap.TotalPieces, snap.GoodPieces, snap.CalculatedAt.In(s.location).Format("2006-01-02 15:04"),
		}
		if err := f.SetSheetRow(oeeExportSheet, cell, &row); err != nil {
			return err
		}
	}
	if len(snaps) > 0 {
		_ = f.SetCellStyle(oeeExportSheet, "D2", fmt.Sprintf("G%d", len(snaps)+1), percent)
	}
	_ = f.SetColWidth(oeeExportSheet, "A", "A", 38)
	_ = f.SetColWidth(oeeExportSheet, "B", "M", 16)

	return f.Write(w)
}

func (s *OEEService) SnapshotActiveShifts(ctx context.Context, day time.Time) (int, error) {
	workcenters, err := s.workcenterRepo.ListEnabled(ctx)
	if err != nil {
		return 0, err
	}
	day = day.In(s.location)
	now := s.now()

	stored := 0
	for _, wc := range workcenters {
		shifts, err := s.shiftRepo.ListActiveByDay(ctx, wc.ID, int(day.Weekday()))
		if err != nil {
			s.logger.Error("Не удалось получить смены рабочего центра", zap.String("workcenter", wc.Code), zap.Error(err))
			continue
		}
		for _, shift := range shifts {
			start, _, err := shift.Window(day, s.location)
			if err != nil || start.After(now) {
				continue
			}
			_, result, err := s.calculateShift(ctx, wc.ID, day, shift)
			if err != nil {
				s.logger.Error("Ошибка расчета OEE", zap.String("workcenter", wc.Code), zap.Int("shift", shift.ShiftNumber), zap.Error(err))
				continue
			}
			s.exportGauges(result)
			if _, err := s.StoreSnapshot(ctx, result); err != nil {
				s.logger.Error("Ошибка сохранения снимка OEE", zap.String("workcenter", wc.Code), zap.Error(err))
				continue
			}
			stored++
		}
	}
	return stored, nil
}
