package listeners

import (
	"context"

	"go.uber.org/zap"

	"mes-system/internal/events"
	"mes-system/pkg/constants"
	"mes-system/pkg/eventbus"
)

// ReplenishmentListener фиксирует сигналы на довыпуск в журнале.
// Заказ на довыпуск создает ERP по событию из канала Redis.
type ReplenishmentListener struct {
	logger *zap.Logger
}

func NewReplenishmentListener(logger *zap.Logger) *ReplenishmentListener {
	return &ReplenishmentListener{logger: logger}
}

func (l *ReplenishmentListener) Register(bus *eventbus.Bus) {
	bus.Subscribe(constants.DomainEventReplenishmentSignaled, "replenishment", l.handle)
}

func (l *ReplenishmentListener) handle(_ context.Context, event eventbus.Event) error {
	e, ok := event.(events.ReplenishmentSignaledEvent)
	if !ok {
		return nil
	}
	l.logger.Warn("Брак по заказу превысил порог, требуется довыпуск",
		zap.String("production_order_id", e.ProductionOrderID),
		zap.Int("scrap_qty", e.ScrapQty),
		zap.Int("planned_qty", e.PlannedQty),
		zap.Float64("threshold", e.Threshold),
	)
	return nil
}
