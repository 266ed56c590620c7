package listeners

import (
	"context"

	"go.uber.org/zap"

	"mes-system/internal/events"
	"mes-system/pkg/constants"
	"mes-system/pkg/eventbus"
	"mes-system/pkg/metrics"
)

// MetricsListener считает производственные метрики вне транзакций исполнения.
type MetricsListener struct {
	logger *zap.Logger
}

func NewMetricsListener(logger *zap.Logger) *MetricsListener {
	return &MetricsListener{logger: logger}
}

func (l *MetricsListener) Register(bus *eventbus.Bus) {
	bus.Subscribe(constants.DomainEventPieceCounted, "metrics", l.handle)
	bus.Subscribe(constants.DomainEventQualityRecorded, "metrics", l.handle)
	bus.Subscribe(constants.DomainEventReplenishmentSignaled, "metrics", l.handle)
}

func (l *MetricsListener) handle(_ context.Context, event eventbus.Event) error {
	switch e := event.(type) {
	case events.PieceCountedEvent:
		metrics.PieceCount.WithLabelValues(e.WorkcenterID, e.ProcessStepID).Add(float64(e.Pieces))
	case events.QualityRecordedEvent:
		metrics.QualityEvents.WithLabelValues(e.Disposition, e.ProcessStepID).Add(float64(e.Qty))
	case events.ReplenishmentSignaledEvent:
		metrics.ReplenishmentSignals.Inc()
	}
	return nil
}
