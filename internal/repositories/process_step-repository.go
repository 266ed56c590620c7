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
	processStepTable  = "process_steps"
	processStepFields = "id, code, name, sequence, standard_cycle_time_min"
)

type ProcessStepRepositoryInterface interface {
	FindByID(ctx context.Context, tx pgx.Tx, id string) (*entities.ProcessStep, error)
	FindBySequence(ctx context.Context, tx pgx.Tx, sequence int) (*entities.ProcessStep, error)
}

type processStepRepository struct {
	storage *pgxpool.Pool
}

func NewProcessStepRepository(storage *pgxpool.Pool) ProcessStepRepositoryInterface {
	return &processStepRepository{storage: storage}
}

func (r *processStepRepository) findOne(ctx context.Context, tx pgx.Tx, column string, value interface{}) (*entities.ProcessStep, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", processStepFields, processStepTable, column)
	var s entities.ProcessStep
	err := getQuerier(r.storage, tx).QueryRow(ctx, query, value).
		Scan(&s.ID, &s.Code, &s.Name, &s.Sequence, &s.StandardCycleTimeMin)
	if err != nil {
		if mapPgError(err) == apperrors.ErrNotFound {
			return nil, apperrors.NewNotFoundError(apperrors.ErrStepNotFound, "технологический шаг %v не найден", value)
		}
		return nil, err
	}
	return &s, nil
}

func (r *processStepRepository) FindByID(ctx context.Context, tx pgx.Tx, id string) (*entities.ProcessStep, error) {
	return r.findOne(ctx, tx, "id", id)
}

func (r *processStepRepository) FindBySequence(ctx context.Context, tx pgx.Tx, sequence int) (*entities.ProcessStep, error) {
	return r.findOne(ctx, tx, "sequence", sequence)
}
