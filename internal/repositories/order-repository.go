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
	orderTable  = "production_orders"
	orderFields = "id, erp_order_code, type, item_id, planned_qty, due_date, priority, status, executed_good_qty, executed_total_qty, created_at, updated_at"
)

type OrderRepositoryInterface interface {
	FindByID(ctx context.Context, tx pgx.Tx, id string) (*entities.ProductionOrder, error)
	// FindByIDForUpdate блокирует строку заказа до конца транзакции.
	FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*entities.ProductionOrder, error)
	// Upsert создает заказ или обновляет план по erp_order_code. Второй результат - true, если заказ создан.
	Upsert(ctx context.Context, tx pgx.Tx, order entities.ProductionOrder) (*entities.ProductionOrder, bool, error)
	UpdateTotals(ctx context.Context, tx pgx.Tx, id, status string, goodQty, totalQty int) error
	Search(ctx context.Context, filter entities.OrderFilter) ([]entities.ProductionOrder, uint64, error)
}

type orderRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewOrderRepository(storage *pgxpool.Pool, logger *zap.Logger) OrderRepositoryInterface {
	return &orderRepository{storage: storage, logger: logger}
}

func scanOrder(row pgx.Row) (*entities.ProductionOrder, error) {
	var o entities.ProductionOrder
	err := row.Scan(&o.ID, &o.ErpOrderCode, &o.Type, &o.ItemID, &o.PlannedQty, &o.DueDate, &o.Priority,
		&o.Status, &o.ExecutedGoodQty, &o.ExecutedTotalQty, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) findOne(ctx context.Context, tx pgx.Tx, id string, forUpdate bool) (*entities.ProductionOrder, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", orderFields, orderTable)
	if forUpdate {
		query += " FOR UPDATE"
	}
	order, err := scanOrder(getQuerier(r.storage, tx).QueryRow(ctx, query, id))
	if err != nil {
		if mapped := mapPgError(err); mapped == apperrors.ErrNotFound {
			return nil, apperrors.NewNotFoundError(apperrors.ErrOrderNotFound, "производственный заказ %s не найден", id)
		}
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) FindByID(ctx context.Context, tx pgx.Tx, id string) (*entities.ProductionOrder, error) {
	return r.findOne(ctx, tx, id, false)
}

func (r *orderRepository) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*entities.ProductionOrder, error) {
	return r.findOne(ctx, tx, id, true)
}

func (r *orderRepository) Upsert(ctx context.Context, tx pgx.Tx, o entities.ProductionOrder) (*entities.ProductionOrder, bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (erp_order_code, type, item_id, planned_qty, due_date, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (erp_order_code) DO UPDATE SET
			type = EXCLUDED.type,
			item_id = EXCLUDED.item_id,
			planned_qty = EXCLUDED.planned_qty,
			due_date = EXCLUDED.due_date,
			priority = EXCLUDED.priority,
			updated_at = NOW()
		RETURNING %s, (xmax = 0) AS inserted`, orderTable, orderFields)

	var saved entities.ProductionOrder
	var inserted bool
	err := getQuerier(r.storage, tx).QueryRow(ctx, query,
		o.ErpOrderCode, o.Type, o.ItemID, o.PlannedQty, o.DueDate, o.Priority, o.Status,
	).Scan(&saved.ID, &saved.ErpOrderCode, &saved.Type, &saved.ItemID, &saved.PlannedQty, &saved.DueDate, &saved.Priority,
		&saved.Status, &saved.ExecutedGoodQty, &saved.ExecutedTotalQty, &saved.CreatedAt, &saved.UpdatedAt, &inserted)
	if err != nil {
		r.logger.Error("Ошибка импорта заказа", zap.String("erp_order_code", o.ErpOrderCode), zap.Error(err))
		return nil, false, mapPgError(err)
	}
	return &saved, inserted, nil
}

func (r *orderRepository) UpdateTotals(ctx context.Context, tx pgx.Tx, id, status string, goodQty, totalQty int) error {
	query, args, err := psql.Update(orderTable).
		Set("status", status).
		Set("executed_good_qty", goodQty).
		Set("executed_total_qty", totalQty).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := getQuerier(r.storage, tx).Exec(ctx, query, args...)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError(apperrors.ErrOrderNotFound, "производственный заказ %s не найден", id)
	}
	return nil
}

func (r *orderRepository) Search(ctx context.Context, filter entities.OrderFilter) ([]entities.ProductionOrder, uint64, error) {
	where := sq.And{}
	if len(filter.Status) > 0 {
		where = append(where, sq.Eq{"status": filter.Status})
	}
	if filter.Type != "" {
		where = append(where, sq.Eq{"type": filter.Type})
	}
	if filter.ErpOrderCode != "" {
		where = append(where, sq.ILike{"erp_order_code": "%" + filter.ErpOrderCode + "%"})
	}
	if filter.DueFrom != nil {
		where = append(where, sq.GtOrEq{"due_date": *filter.DueFrom})
	}
	if filter.DueTo != nil {
		where = append(where, sq.Lt{"due_date": filter.DueTo.Add(24 * time.Hour)})
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From(orderTable).Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total uint64
	if err := r.storage.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []entities.ProductionOrder{}, 0, nil
	}

	builder := psql.Select(orderFields).From(orderTable).Where(where).
		OrderBy("priority DESC", "due_date ASC NULLS LAST", "created_at ASC")
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

	orders := make([]entities.ProductionOrder, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, *o)
	}
	return orders, total, rows.Err()
}
