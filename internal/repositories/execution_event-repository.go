package repositories

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mes-system/internal/entities"
	apperrors "mes-system/pkg/errors"
)

const (
	executionEventTable  = "execution_events"
	executionEventFields = "id, idempotency_key, event_type, production_order_id, process_step_id, workcenter_id, operator_id, lot_id, ts, payload, result"
)

// ExecutionEventRepositoryInterface - журнал исполнения. Только добавление и чтение.
type ExecutionEventRepositoryInterface interface {
	// Append возвращает apperrors.ErrDuplicateKey, если ключ идемпотентности уже записан,
	// и NOT_FOUND, если заказ, шаг, рабочий центр или партия не существуют.
	Append(ctx context.Context, tx pgx.Tx, event *entities.ExecutionEvent) error
	FindByIdempotencyKey(ctx context.Context, key string) (*entities.ExecutionEvent, error)
	List(ctx context.Context, filter entities.EventFilter) ([]entities.ExecutionEvent, uint64, error)
}

type executionEventRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewExecutionEventRepository(storage *pgxpool.Pool, logger *zap.Logger) ExecutionEventRepositoryInterface {
	return &executionEventRepository{storage: storage, logger: logger}
}

func scanExecutionEvent(row pgx.Row) (*entities.ExecutionEvent, error) {
	var e entities.ExecutionEvent
	err := row.Scan(&e.ID, &e.IdempotencyKey, &e.EventType, &e.ProductionOrderID, &e.ProcessStepID,
		&e.WorkcenterID, &e.OperatorID, &e.LotID, &e.Timestamp, &e.Payload, &e.Result)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *executionEventRepository) Append(ctx context.Context, tx pgx.Tx, e *entities.ExecutionEvent) error {
	query, args, err := psql.Insert(executionEventTable).
		Columns("id", "idempotency_key", "event_type", "production_order_id", "process_step_id",
			"workcenter_id", "operator_id", "lot_id", "ts", "payload", "result").
		Values(e.ID, e.IdempotencyKey, e.EventType, e.ProductionOrderID, e.ProcessStepID,
			e.WorkcenterID, e.OperatorID, e.LotID, e.Timestamp, e.Payload, e.Result).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := getQuerier(r.storage, tx).Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperrors.ErrDuplicateKey
		}
		return mapPgError(err)
	}
	return nil
}

func (r *executionEventRepository) FindByIdempotencyKey(ctx context.Context, key string) (*entities.ExecutionEvent, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE idempotency_key = $1", executionEventFields, executionEventTable)
	e, err := scanExecutionEvent(r.storage.QueryRow(ctx, query, key))
	if err != nil {
		return nil, mapPgError(err)
	}
	return e, nil
}

func (r *executionEventRepository) List(ctx context.Context, filter entities.EventFilter) ([]entities.ExecutionEvent, uint64, error) {
	where := sq.And{}
	if len(filter.EventTypes) > 0 {
		where = append(where, sq.Eq{"event_type": filter.EventTypes})
	}
	if filter.ProductionOrderID != "" {
		where = append(where, sq.Eq{"production_order_id": filter.ProductionOrderID})
	}
	if filter.LotID != "" {
		where = append(where, sq.Eq{"lot_id": filter.LotID})
	}
	if filter.WorkcenterID != "" {
		where = append(where, sq.Eq{"workcenter_id": filter.WorkcenterID})
	}
	if filter.From != nil {
		where = append(where, sq.GtOrEq{"ts": *filter.From})
	}
	if filter.To != nil {
		where = append(where, sq.Lt{"ts": *filter.To})
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From(executionEventTable).Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total uint64
	if err := r.storage.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []entities.ExecutionEvent{}, 0, nil
	}

	builder := psql.Select(executionEventFields).From(executionEventTable).Where(where).OrderBy("ts ASC", "id ASC")
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

	events := make([]entities.ExecutionEvent, 0)
	for rows.Next() {
		e, err := scanExecutionEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *e)
	}
	return events, total, rows.Err()
}
