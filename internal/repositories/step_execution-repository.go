package repositories

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mes-system/internal/entities"
	apperrors "mes-system/pkg/errors"
)

const (
	stepExecutionTable  = "step_executions"
	stepExecutionFields = "id, production_order_id, process_step_id, workcenter_id, operator_id, status, started_at, completed_at, planned_qty, executed_qty, good_qty, scrap_qty, reuse_qty, version, updated_at"
)

type StepExecutionRepositoryInterface interface {
	// FindForUpdate блокирует строку агрегата до конца транзакции. NOT_FOUND, если строки нет.
	FindForUpdate(ctx context.Context, tx pgx.Tx, key entities.StepKey) (*entities.StepExecution, error)
	Insert(ctx context.Context, tx pgx.Tx, s *entities.StepExecution) error
	Update(ctx context.Context, tx pgx.Tx, s *entities.StepExecution) error
	ListByOrderAndStep(ctx context.Context, tx pgx.Tx, orderID, stepID string) ([]entities.StepExecution, error)
	ListByOrder(ctx context.Context, tx pgx.Tx, orderID string) ([]entities.StepExecution, error)
	// SamplesInWindow - выполнения рабочего центра с началом в [from, to) и нормативом цикла.
	SamplesInWindow(ctx context.Context, workcenterID string, from, to time.Time) ([]entities.ExecutionSample, error)
}

type stepExecutionRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewStepExecutionRepository(storage *pgxpool.Pool, logger *zap.Logger) StepExecutionRepositoryInterface {
	return &stepExecutionRepository{storage: storage, logger: logger}
}

func scanStepExecution(row pgx.Row) (*entities.StepExecution, error) {
	var s entities.StepExecution
	err := row.Scan(&s.ID, &s.ProductionOrderID, &s.ProcessStepID, &s.WorkcenterID, &s.OperatorID, &s.Status,
		&s.StartedAt, &s.CompletedAt, &s.PlannedQty, &s.ExecutedQty, &s.GoodQty, &s.ScrapQty, &s.ReuseQty,
		&s.Version, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *stepExecutionRepository) FindForUpdate(ctx context.Context, tx pgx.Tx, key entities.StepKey) (*entities.StepExecution, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE production_order_id = $1 AND process_step_id = $2 AND workcenter_id = $3
		FOR UPDATE`, stepExecutionFields, stepExecutionTable)
	s, err := scanStepExecution(getQuerier(r.storage, tx).QueryRow(ctx, query,
		key.ProductionOrderID, key.ProcessStepID, key.WorkcenterID))
	if err != nil {
		if mapPgError(err) == apperrors.ErrNotFound {
			return nil, apperrors.NewNotFoundError(apperrors.ErrExecutionNotFound, "выполнение шага не найдено, сначала запустите шаг")
		}
		return nil, err
	}
	return s, nil
}

// Insert создает агрегат. Гонку двух START разрешает уникальный индекс тройки.
func (r *stepExecutionRepository) Insert(ctx context.Context, tx pgx.Tx, s *entities.StepExecution) error {
	query, args, err := psql.Insert(stepExecutionTable).
		Columns("production_order_id", "process_step_id", "workcenter_id", "operator_id", "status", "started_at",
			"completed_at", "planned_qty", "executed_qty", "good_qty", "scrap_qty", "reuse_qty", "updated_at").
		Values(s.ProductionOrderID, s.ProcessStepID, s.WorkcenterID, s.OperatorID, s.Status, s.StartedAt,
			s.CompletedAt, s.PlannedQty, s.ExecutedQty, s.GoodQty, s.ScrapQty, s.ReuseQty, s.UpdatedAt).
		Suffix("RETURNING id, version").
		ToSql()
	if err != nil {
		return err
	}
	if err := getQuerier(r.storage, tx).QueryRow(ctx, query, args...).Scan(&s.ID, &s.Version); err != nil {
		if mapPgError(err) == apperrors.ErrConflict {
			return apperrors.NewConflictError("шаг уже запущен на этом рабочем центре")
		}
		return mapPgError(err)
	}
	return nil
}

// Update сохраняет счетчики и статус одним кортежем; версия растет на каждое изменение.
func (r *stepExecutionRepository) Update(ctx context.Context, tx pgx.Tx, s *entities.StepExecution) error {
	query, args, err := psql.Update(stepExecutionTable).
		Set("operator_id", s.OperatorID).
		Set("status", s.Status).
		Set("completed_at", s.CompletedAt).
		Set("executed_qty", s.ExecutedQty).
		Set("good_qty", s.GoodQty).
		Set("scrap_qty", s.ScrapQty).
		Set("reuse_qty", s.ReuseQty).
		Set("updated_at", s.UpdatedAt).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": s.ID, "version": s.Version}).
		Suffix("RETURNING version").
		ToSql()
	if err != nil {
		return err
	}
	if err := getQuerier(r.storage, tx).QueryRow(ctx, query, args...).Scan(&s.Version); err != nil {
		if mapPgError(err) == apperrors.ErrNotFound {
			return apperrors.NewConflictError("выполнение шага изменено параллельно, повторите запрос")
		}
		return err
	}
	return nil
}

func (r *stepExecutionRepository) list(ctx context.Context, tx pgx.Tx, where sq.Eq) ([]entities.StepExecution, error) {
	query, args, err := psql.Select(stepExecutionFields).From(stepExecutionTable).Where(where).
		OrderBy("started_at ASC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := getQuerier(r.storage, tx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]entities.StepExecution, 0)
	for rows.Next() {
		s, err := scanStepExecution(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *stepExecutionRepository) ListByOrderAndStep(ctx context.Context, tx pgx.Tx, orderID, stepID string) ([]entities.StepExecution, error) {
	return r.list(ctx, tx, sq.Eq{"production_order_id": orderID, "process_step_id": stepID})
}

func (r *stepExecutionRepository) ListByOrder(ctx context.Context, tx pgx.Tx, orderID string) ([]entities.StepExecution, error) {
	return r.list(ctx, tx, sq.Eq{"production_order_id": orderID})
}

func (r *stepExecutionRepository) SamplesInWindow(ctx context.Context, workcenterID string, from, to time.Time) ([]entities.ExecutionSample, error) {
	query, args, err := psql.
		Select("se.executed_qty", "se.good_qty",
			"COALESCE(i.standard_cycle_time_min, ps.standard_cycle_time_min, 1)::float8").
		From(stepExecutionTable + " se").
		Join("production_orders po ON po.id = se.production_order_id").
		Join("items i ON i.id = po.item_id").
		Join("process_steps ps ON ps.id = se.process_step_id").
		Where(sq.Eq{"se.workcenter_id": workcenterID}).
		Where(sq.GtOrEq{"se.started_at": from}).
		Where(sq.Lt{"se.started_at": to}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := make([]entities.ExecutionSample, 0)
	for rows.Next() {
		var s entities.ExecutionSample
		if err := rows.Scan(&s.ExecutedQty, &s.GoodQty, &s.CycleTimeMin); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
