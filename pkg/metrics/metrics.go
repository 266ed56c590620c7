package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mes_execution_events_total",
		Help: "Принятые события исполнения по типу и рабочему центру",
	}, []string{"event_type", "workcenter"})

	PieceCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mes_piece_count_total",
		Help: "Учтенные детали по рабочему центру и шагу",
	}, []string{"workcenter", "process_step"})

	QualityEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mes_quality_events_total",
		Help: "Количество деталей в событиях качества по решению и шагу",
	}, []string{"disposition", "process_step"})

	IdempotentReplays = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mes_idempotent_replays_total",
		Help: "Повторные отправки, обслуженные из сохраненного результата",
	}, []string{"event_type"})

	ReplenishmentSignals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mes_replenishment_signals_total",
		Help: "Сигналы на довыпуск из-за брака",
	})

	EventBusDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mes_eventbus_dropped_total",
		Help: "События, отброшенные из-за переполненной очереди подписчика",
	}, []string{"event"})

	OEE = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mes_oee",
		Help: "Последнее рассчитанное OEE",
	}, []string{"workcenter", "shift"})

	Availability = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mes_oee_availability",
		Help: "Последняя рассчитанная доступность",
	}, []string{"workcenter", "shift"})

	Performance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mes_oee_performance",
		Help: "Последняя рассчитанная производительность",
	}, []string{"workcenter", "shift"})

	Quality = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mes_oee_quality",
		Help: "Последний рассчитанный уровень качества",
	}, []string{"workcenter", "shift"})
)
