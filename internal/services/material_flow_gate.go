package services

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mes-system/internal/entities"
	"mes-system/internal/repositories"
	"mes-system/pkg/constants"
	apperrors "mes-system/pkg/errors"
)

// GateRequest - ссылки, которые проверяет шлюз перед SCAN и START.
type GateRequest struct {
	ProductionOrderID string
	ProcessStepID     string
	WorkcenterID      string
	// LotID проверяется, только если задан.
	LotID string
}

// GateResult - загруженные справочники, чтобы вызывающий не читал их повторно.
type GateResult struct {
	Order      *entities.ProductionOrder
	Step       *entities.ProcessStep
	Workcenter *entities.Workcenter
	Lot        *entities.Lot
}

type MaterialFlowGateInterface interface {
	Check(ctx context.Context, tx pgx.Tx, req GateRequest) (*GateResult, error)
}

// MaterialFlowGate читает агрегат предыдущего шага без блокировки:
// START, гонящийся с COMPLETE предыдущего шага, может быть отклонен и повторен.
type MaterialFlowGate struct {
	orderRepo      repositories.OrderRepositoryInterface
	stepRepo       repositories.ProcessStepRepositoryInterface
	workcenterRepo repositories.WorkcenterRepositoryInterface
	executionRepo  repositories.StepExecutionRepositoryInterface
	lotRepo        repositories.LotRepositoryInterface
	logger         *zap.Logger
}

func NewMaterialFlowGate(
	orderRepo repositories.OrderRepositoryInterface,
	stepRepo repositories.ProcessStepRepositoryInterface,
	workcenterRepo repositories.WorkcenterRepositoryInterface,
	executionRepo repositories.StepExecutionRepositoryInterface,
	lotRepo repositories.LotRepositoryInterface,
	logger *zap.Logger,
) MaterialFlowGateInterface {
	return &MaterialFlowGate{
		orderRepo:      orderRepo,
		stepRepo:       stepRepo,
		workcenterRepo: workcenterRepo,
		executionRepo:  executionRepo,
		lotRepo:        lotRepo,
		logger:         logger,
	}
}

func (g *MaterialFlowGate) Check(ctx context.Context, tx pgx.Tx, req GateRequest) (*GateResult, error) {
	order, err := g.orderRepo.FindByID(ctx, tx, req.ProductionOrderID)
	if err != nil {
		return nil, err
	}
	if order.Status == constants.OrderStatusClosed {
		return nil, apperrors.NewValidationError("заказ %s закрыт", order.ErpOrderCode).
			WithDetail("production_order_id", order.ID)
	}

	workcenter, err := g.workcenterRepo.FindByID(ctx, tx, req.WorkcenterID)
	if err != nil {
		return nil, err
	}
	if !workcenter.IsEnabled {
		verr := apperrors.NewValidationError("рабочий центр %s отключен", workcenter.Code)
		if workcenter.DisabledReason != nil {
			verr = verr.WithDetail("reason", *workcenter.DisabledReason)
		}
		return nil, verr
	}
	if !workcenter.AcceptsStep(req.ProcessStepID) {
		return nil, apperrors.NewValidationError("рабочий центр %s не выполняет этот шаг", workcenter.Code).
			WithDetail("bound_process_step_id", *workcenter.ProcessStepID)
	}

	step, err := g.stepRepo.FindByID(ctx, tx, req.ProcessStepID)
	if err != nil {
		return nil, err
	}
	if step.Sequence > 1 {
		if err := g.checkPredecessor(ctx, tx, order.ID, step); err != nil {
			return nil, err
		}
	}

	result := &GateResult{Order: order, Step: step, Workcenter: workcenter}
	if req.LotID != "" {
		lot, err := g.lotRepo.FindByID(ctx, tx, req.LotID)
		if err != nil {
			return nil, err
		}
		result.Lot = lot
	}
	return result, nil
}

func (g *MaterialFlowGate) checkPredecessor(ctx context.Context, tx pgx.Tx, orderID string, step *entities.ProcessStep) error {
	prev, err := g.stepRepo.FindBySequence(ctx, tx, step.Sequence-1)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NewValidationError("в маршруте нет шага с номером %d", step.Sequence-1)
		}
		return err
	}

	executions, err := g.executionRepo.ListByOrderAndStep(ctx, tx, orderID, prev.ID)
	if err != nil {
		return err
	}
	for _, exec := range executions {
		if exec.IsCompleted() && exec.GoodQty > 0 {
			return nil
		}
	}

	g.logger.Debug("Предыдущий шаг не завершен",
		zap.String("order_id", orderID),
		zap.String("step", step.Code),
		zap.String("previous_step", prev.Code))
	return apperrors.NewValidationError("предыдущий шаг %s не завершен с годными деталями", prev.Code).
		WithDetail("previous_process_step_id", prev.ID)
}
