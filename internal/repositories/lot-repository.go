package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mes-system/internal/entities"
	apperrors "mes-system/pkg/errors"
)

const (
	lotTable  = "lots"
	lotFields = "id, lot_code, production_order_id, quantity, created_at"
)

type LotRepositoryInterface interface {
	FindByID(ctx context.Context, tx pgx.Tx, id string) (*entities.Lot, error)
}

type lotRepository struct {
	storage *pgxpool.Pool
}

func NewLotRepository(storage *pgxpool.Pool) LotRepositoryInterface {
	return &lotRepository{storage: storage}
}

func (r *lotRepository) FindByID(ctx context.Context, tx pgx.Tx, id string) (*entities.Lot, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", lotFields, lotTable)
	var l entities.Lot
	err := getQuerier(r.storage, tx).QueryRow(ctx, query, id).
		Scan(&l.ID, &l.LotCode, &l.ProductionOrderID, &l.Quantity, &l.CreatedAt)
	if err != nil {
		if mapPgError(err) == apperrors.ErrNotFound {
			return nil, apperrors.NewNotFoundError(apperrors.ErrLotNotFound, "партия %s не найдена", id)
		}
		return nil, err
	}
	return &l, nil
}
