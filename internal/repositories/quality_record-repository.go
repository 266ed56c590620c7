package repositories

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mes-system/internal/entities"
	"mes-system/pkg/constants"
)

const (
	qualityRecordTable  = "quality_records"
	qualityRecordFields = "id, execution_event_id, production_order_id, lot_id, process_step_id, workcenter_id, operator_id, disposition, reason_code, qty, notes, ts"
)

type QualityRecordRepositoryInterface interface {
	Insert(ctx context.Context, tx pgx.Tx, rec *entities.QualityRecord) error
	// ScrapTotal - накопленный брак без повторного использования по заказу.
	ScrapTotal(ctx context.Context, tx pgx.Tx, orderID string) (int, error)
	ListByOrder(ctx context.Context, orderID string) ([]entities.QualityRecord, error)
	ListByLot(ctx context.Context, lotID string) ([]entities.QualityRecord, error)
	Summary(ctx context.Context, filter entities.QualitySummaryFilter) ([]entities.QualitySummaryRow, error)
}

type qualityRecordRepository struct {
	storage *pgxpool.Pool
}

func NewQualityRecordRepository(storage *pgxpool.Pool) QualityRecordRepositoryInterface {
	return &qualityRecordRepository{storage: storage}
}

func (r *qualityRecordRepository) Insert(ctx context.Context, tx pgx.Tx, rec *entities.QualityRecord) error {
	query, args, err := psql.Insert(qualityRecordTable).
		Columns("id", "execution_event_id", "production_order_id", "lot_id", "process_step_id", "workcenter_id",
			"operator_id", "disposition", "reason_code", "qty", "notes", "ts").
		Values(rec.ID, rec.ExecutionEventID, rec.ProductionOrderID, rec.LotID, rec.ProcessStepID, rec.WorkcenterID,
			rec.OperatorID, rec.Disposition, rec.ReasonCode, rec.Qty, rec.Notes, rec.Timestamp).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := getQuerier(r.storage, tx).Exec(ctx, query, args...); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *qualityRecordRepository) ScrapTotal(ctx context.Context, tx pgx.Tx, orderID string) (int, error) {
	query := fmt.Sprintf("SELECT COALESCE(SUM(qty), 0) FROM %s WHERE production_order_id = $1 AND disposition = $2", qualityRecordTable)
	var total int
	if err := getQuerier(r.storage, tx).QueryRow(ctx, query, orderID, constants.DispositionScrap).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *qualityRecordRepository) list(ctx context.Context, where sq.Eq) ([]entities.QualityRecord, error) {
	query, args, err := psql.Select(qualityRecordFields).From(qualityRecordTable).Where(where).OrderBy("ts ASC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]entities.QualityRecord, 0)
	for rows.Next() {
		var q entities.QualityRecord
		if err := rows.Scan(&q.ID, &q.ExecutionEventID, &q.ProductionOrderID, &q.LotID, &q.ProcessStepID,
			&q.WorkcenterID, &q.OperatorID, &q.Disposition, &q.ReasonCode, &q.Qty, &q.Notes, &q.Timestamp); err != nil {
			return nil, err
		}
		records = append(records, q)
	}
	return records, rows.Err()
}

func (r *qualityRecordRepository) ListByOrder(ctx context.Context, orderID string) ([]entities.QualityRecord, error) {
	return r.list(ctx, sq.Eq{"production_order_id": orderID})
}

func (r *qualityRecordRepository) ListByLot(ctx context.Context, lotID string) ([]entities.QualityRecord, error) {
	return r.list(ctx, sq.Eq{"lot_id": lotID})
}

func (r *qualityRecordRepository) Summary(ctx context.Context, filter entities.QualitySummaryFilter) ([]entities.QualitySummaryRow, error) {
	builder := psql.Select("disposition", "reason_code", "SUM(qty)", "COUNT(*)").
		From(qualityRecordTable).
		GroupBy("disposition", "reason_code").
		OrderBy("SUM(qty) DESC")
	if filter.ProductionOrderID != "" {
		builder = builder.Where(sq.Eq{"production_order_id": filter.ProductionOrderID})
	}
	if filter.WorkcenterID != "" {
		builder = builder.Where(sq.Eq{"workcenter_id": filter.WorkcenterID})
	}
	if filter.From != nil {
		builder = builder.Where(sq.GtOrEq{"ts": *filter.From})
	}
	if filter.To != nil {
		builder = builder.Where(sq.Lt{"ts": *filter.To})
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

	result := make([]entities.QualitySummaryRow, 0)
	for rows.Next() {
		var row entities.QualitySummaryRow
		if err := rows.Scan(&row.Disposition, &row.ReasonCode, &row.Qty, &row.Records); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
