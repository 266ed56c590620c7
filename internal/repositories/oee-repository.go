package repositories

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mes-system/internal/entities"
	"mes-system/pkg/constants"
	apperrors "mes-system/pkg/errors"
)

const (
	shiftTable    = "shift_schedules"
	shiftFields   = "id, workcenter_id, day_of_week, shift_number, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), is_active"
	downtimeTable = "downtime_events"
	snapshotTable = "oee_snapshots"
	snapshotCols  = "id, workcenter_id, date, shift_number, availability::float8, performance::float8, quality::float8, oee::float8, planned_time_min::float8, operating_time_min::float8, downtime_min::float8, total_pieces, good_pieces, calculated_at"
)

type ShiftScheduleRepositoryInterface interface {
	// FindActive возвращает ErrShiftNotFound, если активной смены нет.
	FindActive(ctx context.Context, workcenterID string, dayOfWeek, shiftNumber int) (*entities.ShiftSchedule, error)
	ListActiveByDay(ctx context.Context, workcenterID string, dayOfWeek int) ([]entities.ShiftSchedule, error)
}

type DowntimeRepositoryInterface interface {
	ListOverlapping(ctx context.Context, workcenterID string, from, to time.Time) ([]entities.DowntimeEvent, error)
	// ListFailures - внеплановые простои, начавшиеся или закрытые в [from, to).
	// Пустой workcenterID означает все рабочие центры.
	ListFailures(ctx context.Context, workcenterID string, from, to time.Time) ([]entities.Failure, error)
}

type OEESnapshotRepositoryInterface interface {
	// Upsert идемпотентен по (workcenter, date, shift).
	Upsert(ctx context.Context, snap entities.OEESnapshot) (*entities.OEESnapshot, error)
	List(ctx context.Context, filter entities.OEEHistoryFilter) ([]entities.OEESnapshot, uint64, error)
}

type shiftScheduleRepository struct{ storage *pgxpool.Pool }

func NewShiftScheduleRepository(storage *pgxpool.Pool) ShiftScheduleRepositoryInterface {
	return &shiftScheduleRepository{storage: storage}
}

func scanShift(row pgx.Row) (*entities.ShiftSchedule, error) {
	var s entities.ShiftSchedule
	if err := row.Scan(&s.ID, &s.WorkcenterID, &s.DayOfWeek, &s.ShiftNumber, &s.StartTime, &s.EndTime, &s.IsActive); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *shiftScheduleRepository) FindActive(ctx context.Context, workcenterID string, dayOfWeek, shiftNumber int) (*entities.ShiftSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE workcenter_id = $1 AND day_of_week = $2 AND shift_number = $3 AND is_active`, shiftFields, shiftTable)
	s, err := scanShift(r.storage.QueryRow(ctx, query, workcenterID, dayOfWeek, shiftNumber))
	if err != nil {
		if mapPgError(err) == apperrors.ErrNotFound {
			return nil, apperrors.ErrShiftNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *shiftScheduleRepository) ListActiveByDay(ctx context.Context, workcenterID string, dayOfWeek int) ([]entities.ShiftSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE workcenter_id = $1 AND day_of_week = $2 AND is_active ORDER BY shift_number`, shiftFields, shiftTable)
	rows, err := r.storage.Query(ctx, query, workcenterID, dayOfWeek)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := make([]entities.ShiftSchedule, 0)
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, *s)
	}
	return shifts, rows.Err()
}

type downtimeRepository struct{ storage *pgxpool.Pool }

func NewDowntimeRepository(storage *pgxpool.Pool) DowntimeRepositoryInterface {
	return &downtimeRepository{storage: storage}
}

// ListOverlapping - простои, пересекающие [from, to), включая незакрытые.
func (r *downtimeRepository) ListOverlapping(ctx context.Context, workcenterID string, from, to time.Time) ([]entities.DowntimeEvent, error) {
	query, args, err := psql.Select("id", "workcenter_id", "start_ts", "end_ts", "downtime_type", "reason_code").
		From(downtimeTable).
		Where(sq.Eq{"workcenter_id": workcenterID}).
		Where(sq.Lt{"start_ts": to}).
		Where(sq.Or{sq.Eq{"end_ts": nil}, sq.Gt{"end_ts": from}}).
		OrderBy("start_ts").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]entities.DowntimeEvent, 0)
	for rows.Next() {
		var d entities.DowntimeEvent
		if err := rows.Scan(&d.ID, &d.WorkcenterID, &d.StartTs, &d.EndTs, &d.DowntimeType, &d.ReasonCode); err != nil {
			return nil, err
		}
		events = append(events, d)
	}
	return events, rows.Err()
}

func (r *downtimeRepository) ListFailures(ctx context.Context, workcenterID string, from, to time.Time) ([]entities.Failure, error) {
	builder := psql.Select("d.workcenter_id", "w.code", "d.start_ts", "d.end_ts").
		From(downtimeTable + " d").
		Join(workcenterTable + " w ON w.id = d.workcenter_id").
		Where(sq.Eq{"d.downtime_type": constants.DowntimeUnplanned}).
		Where(sq.Or{
			sq.And{sq.GtOrEq{"d.start_ts": from}, sq.Lt{"d.start_ts": to}},
			sq.And{sq.GtOrEq{"d.end_ts": from}, sq.Lt{"d.end_ts": to}},
		}).
		OrderBy("d.start_ts")
	if workcenterID != "" {
		builder = builder.Where(sq.Eq{"d.workcenter_id": workcenterID})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	failures := make([]entities.Failure, 0)
	for rows.Next() {
		var f entities.Failure
		if err := rows.Scan(&f.WorkcenterID, &f.WorkcenterCode, &f.StartTs, &f.EndTs); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

type oeeSnapshotRepository struct{ storage *pgxpool.Pool }

func NewOEESnapshotRepository(storage *pgxpool.Pool) OEESnapshotRepositoryInterface {
	return &oeeSnapshotRepository{storage: storage}
}

func scanSnapshot(row pgx.Row) (*entities.OEESnapshot, error) {
	var s entities.OEESnapshot
	err := row.Scan(&s.ID, &s.WorkcenterID, &s.Date, &s.ShiftNumber, &s.Availability, &s.Performance, &s.Quality,
		&s.OEE, &s.PlannedTimeMin, &s.OperatingTimeMin, &s.DowntimeMin, &s.TotalPieces, &s.GoodPieces, &s.CalculatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *oeeSnapshotRepository) Upsert(ctx context.Context, snap entities.OEESnapshot) (*entities.OEESnapshot, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (workcenter_id, date, shift_number, availability, performance, quality, oee,
			planned_time_min, operating_time_min, downtime_min, total_pieces, good_pieces, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (workcenter_id, date, shift_number) DO UPDATE SET
			availability = EXCLUDED.availability,
			performance = EXCLUDED.performance,
			quality = EXCLUDED.quality,
			oee = EXCLUDED.oee,
			planned_time_min = EXCLUDED.planned_time_min,
			operating_time_min = EXCLUDED.operating_time_min,
			downtime_min = EXCLUDED.downtime_min,
			total_pieces = EXCLUDED.total_pieces,
			good_pieces = EXCLUDED.good_pieces,
			calculated_at = EXCLUDED.calculated_at
		RETURNING %s`, snapshotTable, snapshotCols)

	saved, err := scanSnapshot(r.storage.QueryRow(ctx, query,
		snap.WorkcenterID, snap.Date, snap.ShiftNumber, snap.Availability, snap.Performance, snap.Quality, snap.OEE,
		snap.PlannedTimeMin, snap.OperatingTimeMin, snap.DowntimeMin, snap.TotalPieces, snap.GoodPieces, snap.CalculatedAt))
	if err != nil {
		return nil, mapPgError(err)
	}
	return saved, nil
}

func (r *oeeSnapshotRepository) List(ctx context.Context, filter entities.OEEHistoryFilter) ([]entities.OEESnapshot, uint64, error) {
	where := sq.And{}
	if filter.WorkcenterID != "" {
		where = append(where, sq.Eq{"workcenter_id": filter.WorkcenterID})
	}
	if filter.ShiftNumber > 0 {
		where = append(where, sq.Eq{"shift_number": filter.ShiftNumber})
	}
	if filter.From != nil {
		where = append(where, sq.GtOrEq{"date": *filter.From})
	}
	if filter.To != nil {
		where = append(where, sq.LtOrEq{"date": *filter.To})
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From(snapshotTable).Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total uint64
	if err := r.storage.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []entities.OEESnapshot{}, 0, nil
	}

	builder := psql.Select(snapshotCols).From(snapshotTable).Where(where).OrderBy("date DESC", "shift_number ASC")
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit).Offset(filter.Offset)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	snaps := make([]entities.OEESnapshot, 0)
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, 0, err
		}
		snaps = append(snaps, *s)
	}
	return snaps, total, rows.Err()
}
