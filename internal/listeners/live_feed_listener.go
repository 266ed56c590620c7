package listeners

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mes-system/internal/events"
	"mes-system/internal/services"
	"mes-system/pkg/eventbus"
)

// MessagePiecesBatch - сгруппированные PIECE_COUNTED одного шага.
const MessagePiecesBatch = "PIECES_COUNTED_BATCH"

type pieceGroupKey struct {
	OrderID      string
	StepID       string
	WorkcenterID string
}

type pieceGroup struct {
	events []events.PieceCountedEvent
	timer  *time.Timer
}

// PiecesBatchPayload - итог группы счетов за окно.
type PiecesBatchPayload struct {
	ProductionOrderID string    `json:"production_order_id"`
	ProcessStepID     string    `json:"process_step_id"`
	WorkcenterID      string    `json:"workcenter_id"`
	Pieces            int       `json:"pieces"`
	Events            int       `json:"events"`
	ExecutedQty       int       `json:"executed_qty"`
	OrderStatus       string    `json:"order_status"`
	LastTs            time.Time `json:"last_ts"`
}

// LiveFeedListener пересылает доменные события на панели цеха.
// Счета деталей от датчиков приходят часто, поэтому группируются по шагу за окно.
type LiveFeedListener struct {
	feed     services.LiveFeedInterface
	window   time.Duration
	logger   *zap.Logger
	groups   map[pieceGroupKey]*pieceGroup
	groupsMu sync.Mutex
}

func NewLiveFeedListener(feed services.LiveFeedInterface, window time.Duration, logger *zap.Logger) *LiveFeedListener {
	return &LiveFeedListener{
		feed:   feed,
		window: window,
		logger: logger,
		groups: make(map[pieceGroupKey]*pieceGroup),
	}
}

func (l *LiveFeedListener) Register(bus *eventbus.Bus) {
	bus.SubscribeAll("live_feed", l.handle)
	l.logger.Info("LiveFeedListener подписан на все доменные события")
}

func (l *LiveFeedListener) handle(ctx context.Context, event eventbus.Event) error {
	if e, ok := event.(events.PieceCountedEvent); ok && l.window > 0 {
		l.addPieces(e)
		return nil
	}
	return l.feed.Send(event.Name(), workcenterOf(event), event)
}

func (l *LiveFeedListener) addPieces(e events.PieceCountedEvent) {
	key := pieceGroupKey{OrderID: e.ProductionOrderID, StepID: e.ProcessStepID, WorkcenterID: e.WorkcenterID}

	l.groupsMu.Lock()
	defer l.groupsMu.Unlock()

	group, exists := l.groups[key]
	if !exists {
		group = &pieceGroup{}
		l.groups[key] = group
		group.timer = time.AfterFunc(l.window, func() { l.flush(key) })
	}
	group.events = append(group.events, e)
}

func (l *LiveFeedListener) flush(key pieceGroupKey) {
	l.groupsMu.Lock()
	group, exists := l.groups[key]
	if !exists {
		l.groupsMu.Unlock()
		return
	}
	delete(l.groups, key)
	l.groupsMu.Unlock()

	if len(group.events) == 0 {
		return
	}
	if err := l.feed.Send(MessagePiecesBatch, key.WorkcenterID, summarizePieces(group.events)); err != nil {
		l.logger.Error("Не удалось отправить счет деталей на панели", zap.String("workcenter_id", key.WorkcenterID), zap.Error(err))
	}
}

// Flush отправляет все накопленные группы, вызывается при остановке.
func (l *LiveFeedListener) Flush() {
	l.groupsMu.Lock()
	keys := make([]pieceGroupKey, 0, len(l.groups))
	for key, group := range l.groups {
		group.timer.Stop()
		keys = append(keys, key)
	}
	l.groupsMu.Unlock()

	for _, key := range keys {
		l.flush(key)
	}
}

func summarizePieces(batch []events.PieceCountedEvent) PiecesBatchPayload {
	first := batch[0]
	p := PiecesBatchPayload{
		ProductionOrderID: first.ProductionOrderID,
		ProcessStepID:     first.ProcessStepID,
		WorkcenterID:      first.WorkcenterID,
		Events:            len(batch),
	}
	for _, e := range batch {
		p.Pieces += e.Pieces
		// очередь подписчика сохраняет порядок, последнее событие самое свежее
		p.ExecutedQty = e.ExecutedQty
		p.OrderStatus = e.OrderStatus
		p.LastTs = e.Timestamp
	}
	return p
}

func workcenterOf(event eventbus.Event) string {
	switch e := event.(type) {
	case events.BarcodeScannedEvent:
		return e.WorkcenterID
	case events.StepStartedEvent:
		return e.WorkcenterID
	case events.PieceCountedEvent:
		return e.WorkcenterID
	case events.QualityRecordedEvent:
		return e.WorkcenterID
	case events.StepCompletedEvent:
		return e.WorkcenterID
	}
	return ""
}
