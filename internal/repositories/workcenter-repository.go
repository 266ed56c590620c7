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
	workcenterTable  = "workcenters"
	workcenterFields = "id, code, name, is_enabled, disabled_reason, disabled_by, disabled_at, process_step_id"
)

type WorkcenterRepositoryInterface interface {
	FindByID(ctx context.Context, tx pgx.Tx, id string) (*entities.Workcenter, error)
	ListEnabled(ctx context.Context) ([]entities.Workcenter, error)
	SetEnabled(ctx context.Context, id string, enabled bool, reason *string, actorID string, at time.Time) (*entities.Workcenter, error)
}

type workcenterRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewWorkcenterRepository(storage *pgxpool.Pool, logger *zap.Logger) WorkcenterRepositoryInterface {
	return &workcenterRepository{storage: storage, logger: logger}
}

func scanWorkcenter(row pgx.Row) (*entities.Workcenter, error) {
	var w entities.Workcenter
	if err := row.Scan(&w.ID, &w.Code, &w.Name, &w.IsEnabled, &w.DisabledReason, &w.DisabledBy, &w.DisabledAt, &w.ProcessStepID); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *workcenterRepository) FindByID(ctx context.Context, tx pgx.Tx, id string) (*entities.Workcenter, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", workcenterFields, workcenterTable)
	w, err := scanWorkcenter(getQuerier(r.storage, tx).QueryRow(ctx, query, id))
	if err != nil {
		if mapPgError(err) == apperrors.ErrNotFound {
			return nil, apperrors.NewNotFoundError(apperrors.ErrWorkcenterNotFound, "рабочий центр %s не найден", id)
		}
		return nil, err
	}
	return w, nil
}

func (r *workcenterRepository) ListEnabled(ctx context.Context) ([]entities.Workcenter, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE is_enabled ORDER BY code", workcenterFields, workcenterTable)
	rows, err := r.storage.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]entities.Workcenter, 0)
	for rows.Next() {
		w, err := scanWorkcenter(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	return result, rows.Err()
}

// SetEnabled включает или отключает рабочий центр, фиксируя причину, автора и время.
func (r *workcenterRepository) SetEnabled(ctx context.Context, id string, enabled bool, reason *string, actorID string, at time.Time) (*entities.Workcenter, error) {
	builder := psql.Update(workcenterTable).Set("is_enabled", enabled).Where(sq.Eq{"id": id})
	if enabled {
		builder = builder.Set("disabled_reason", nil).Set("disabled_by", nil).Set("disabled_at", nil)
	} else {
		builder = builder.Set("disabled_reason", reason).Set("disabled_by", actorID).Set("disabled_at", at)
	}
	query, args, err := builder.Suffix("RETURNING " + workcenterFields).ToSql()
	if err != nil {
		return nil, err
	}

	w, err := scanWorkcenter(r.storage.QueryRow(ctx, query, args...))
	if err != nil {
		if mapPgError(err) == apperrors.ErrNotFound {
			return nil, apperrors.NewNotFoundError(apperrors.ErrWorkcenterNotFound, "рабочий центр %s не найден", id)
		}
		return nil, err
	}
	r.logger.Info("Состояние рабочего центра изменено",
		zap.String("workcenter", id), zap.Bool("enabled", enabled), zap.String("actor", actorID))
	return w, nil
}
