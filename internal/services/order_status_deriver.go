package services

import (
	"context"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mes-system/internal/dto"
	"mes-system/internal/entities"
	"mes-system/internal/repositories"
	"mes-system/pkg/constants"
)

// statusRule - строка таблицы решений. Правила проверяются сверху вниз,
// срабатывает первое подходящее.
type statusRule struct {
	status string
	match  func(planned, executed, good int) bool
}

var orderStatusRules = []statusRule{
	{constants.OrderStatusOpenNotStarted, func(_, executed, _ int) bool { return executed == 0 }},
	{constants.OrderStatusClosed, func(planned, _, good int) bool { return good >= planned }},
	{constants.OrderStatusInProgress, func(planned, executed, _ int) bool { return executed > 0 && executed < planned }},
	{constants.OrderStatusOpenPartial, func(planned, executed, good int) bool { return executed >= planned && good < planned }},
}

// DeriveStatus вычисляет статус заказа по плану и суммам выполнения.
// Немонотонные входы (откат итогов) не обрабатываются особо.
func DeriveStatus(planned, totalExecuted, totalGood int) string {
	for _, rule := range orderStatusRules {
		if rule.match(planned, totalExecuted, totalGood) {
			return rule.status
		}
	}
	// недостижимо при totalExecuted >= 0: четвертое правило закрывает остаток
	return constants.OrderStatusInProgress
}

type OrderStatusDeriverInterface interface {
	// Recalculate блокирует заказ и пересчитывает статус и итоги.
	Recalculate(ctx context.Context, tx pgx.Tx, orderID string) (*dto.OrderTotalsDTO, error)
	// Apply пересчитывает уже заблокированный вызывающим заказ.
	Apply(ctx context.Context, tx pgx.Tx, order *entities.ProductionOrder) (*dto.OrderTotalsDTO, error)
}

// OrderStatusDeriver - единственное место, где меняются статус и итоги заказа.
type OrderStatusDeriver struct {
	orderRepo     repositories.OrderRepositoryInterface
	executionRepo repositories.StepExecutionRepositoryInterface
	logger        *zap.Logger
}

func NewOrderStatusDeriver(
	orderRepo repositories.OrderRepositoryInterface,
	executionRepo repositories.StepExecutionRepositoryInterface,
	logger *zap.Logger,
) OrderStatusDeriverInterface {
	return &OrderStatusDeriver{orderRepo: orderRepo, executionRepo: executionRepo, logger: logger}
}

func (d *OrderStatusDeriver) Recalculate(ctx context.Context, tx pgx.Tx, orderID string) (*dto.OrderTotalsDTO, error) {
	order, err := d.orderRepo.FindByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	return d.Apply(ctx, tx, order)
}

func (d *OrderStatusDeriver) Apply(ctx context.Context, tx pgx.Tx, order *entities.ProductionOrder) (*dto.OrderTotalsDTO, error) {
	executions, err := d.executionRepo.ListByOrder(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}

	var executed, good, scrap int
	for _, exec := range executions {
		executed += exec.ExecutedQty
		good += exec.GoodQty
		scrap += exec.ScrapQty
	}
	status := DeriveStatus(order.PlannedQty, executed, good)

	if status != order.Status || executed != order.ExecutedTotalQty || good != order.ExecutedGoodQty {
		if err := d.orderRepo.UpdateTotals(ctx, tx, order.ID, status, good, executed); err != nil {
			return nil, err
		}
		if status != order.Status {
			d.logger.Info("Статус заказа изменен",
				zap.String("order_id", order.ID),
				zap.String("from", order.Status),
				zap.String("to", status))
		}
		order.Status = status
		order.ExecutedGoodQty = good
		order.ExecutedTotalQty = executed
	}

	return &dto.OrderTotalsDTO{
		ID:               order.ID,
		Status:           status,
		PlannedQty:       order.PlannedQty,
		ExecutedGoodQty:  good,
		ExecutedTotalQty: executed,
		ScrapQty:         scrap,
	}, nil
}
