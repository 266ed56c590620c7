package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mes-system/internal/entities"
	"mes-system/pkg/constants"
	"mes-system/pkg/eventbus"
	apperrors "mes-system/pkg/errors"
)

// memStore - данные в памяти. txMu сериализует транзакции, как блокировки строк в PostgreSQL.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	orders      map[string]entities.ProductionOrder
	steps       map[string]entities.ProcessStep
	workcenters map[string]entities.Workcenter
	lots        map[string]entities.Lot
	executions  map[entities.StepKey]entities.StepExecution
	events      []entities.ExecutionEvent
	quality     []entities.QualityRecord

	shifts    []entities.ShiftSchedule
	downtimes []entities.DowntimeEvent
	samples   map[string][]entities.ExecutionSample
	snapshots map[string]entities.OEESnapshot
}

func newMemStore() *memStore {
	return &memStore{
		orders:      map[string]entities.ProductionOrder{},
		steps:       map[string]entities.ProcessStep{},
		workcenters: map[string]entities.Workcenter{},
		lots:        map[string]entities.Lot{},
		executions:  map[entities.StepKey]entities.StepExecution{},
		samples:     map[string][]entities.ExecutionSample{},
		snapshots:   map[string]entities.OEESnapshot{},
	}
}

type storeState struct {
	orders     map[string]entities.ProductionOrder
	executions map[entities.StepKey]entities.StepExecution
	events     []entities.ExecutionEvent
	quality    []entities.QualityRecord
}

func (s *memStore) snapshot() storeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := storeState{
		orders:     make(map[string]entities.ProductionOrder, len(s.orders)),
		executions: make(map[entities.StepKey]entities.StepExecution, len(s.executions)),
		events:     append([]entities.ExecutionEvent(nil), s.events...),
		quality:    append([]entities.QualityRecord(nil), s.quality...),
	}
	for k, v := range s.orders {
		st.orders[k] = v
	}
	for k, v := range s.executions {
		st.executions[k] = v
	}
	return st
}

func (s *memStore) restore(st storeState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = st.orders
	s.executions = st.executions
	s.events = st.events
	s.quality = st.quality
}

func (s *memStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *memStore) execution(key entities.StepKey) (entities.StepExecution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[key]
	return e, ok
}

func (s *memStore) order(id string) entities.ProductionOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

// fakeTxManager откатывает изменения хранилища, если fn вернула ошибку.
type fakeTxManager struct{ store *memStore }

func (m *fakeTxManager) RunInTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	before := m.store.snapshot()
	if err := fn(nil); err != nil {
		m.store.restore(before)
		return err
	}
	return nil
}

// --- заказы ---

type fakeOrderRepo struct{ store *memStore }

func (r *fakeOrderRepo) FindByID(ctx context.Context, tx pgx.Tx, id string) (*entities.ProductionOrder, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(apperrors.ErrOrderNotFound, "заказ %s не найден", id)
	}
	return &o, nil
}

func (r *fakeOrderRepo) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*entities.ProductionOrder, error) {
	return r.FindByID(ctx, tx, id)
}

func (r *fakeOrderRepo) Upsert(ctx context.Context, tx pgx.Tx, order entities.ProductionOrder) (*entities.ProductionOrder, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for id, existing := range r.store.orders {
		if existing.ErpOrderCode == order.ErpOrderCode {
			existing.Type = order.Type
			existing.ItemID = order.ItemID
			existing.PlannedQty = order.PlannedQty
			existing.DueDate = order.DueDate
			existing.Priority = order.Priority
			r.store.orders[id] = existing
			return &existing, false, nil
		}
	}
	order.ID = uuid.NewString()
	r.store.orders[order.ID] = order
	return &order, true, nil
}

func (r *fakeOrderRepo) UpdateTotals(ctx context.Context, tx pgx.Tx, id, status string, goodQty, totalQty int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[id]
	if !ok {
		return apperrors.NewNotFoundError(apperrors.ErrOrderNotFound, "заказ %s не найден", id)
	}
	o.Status = status
	o.ExecutedGoodQty = goodQty
	o.ExecutedTotalQty = totalQty
	r.store.orders[id] = o
	return nil
}

func (r *fakeOrderRepo) Search(ctx context.Context, filter entities.OrderFilter) ([]entities.ProductionOrder, uint64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []entities.ProductionOrder{}
	for _, o := range r.store.orders {
		out = append(out, o)
	}
	return out, uint64(len(out)), nil
}

// --- справочники ---

type fakeStepRepo struct{ store *memStore }

func (r *fakeStepRepo) FindByID(ctx context.Context, tx pgx.Tx, id string) (*entities.ProcessStep, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	st, ok := r.store.steps[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(apperrors.ErrStepNotFound, "шаг %s не найден", id)
	}
	return &st, nil
}

func (r *fakeStepRepo) FindBySequence(ctx context.Context, tx pgx.Tx, sequence int) (*entities.ProcessStep, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, st := range r.store.steps {
		if st.Sequence == sequence {
			return &st, nil
		}
	}
	return nil, apperrors.NewNotFoundError(apperrors.ErrStepNotFound, "шаг с номером %d не найден", sequence)
}

type fakeWorkcenterRepo struct{ store *memStore }

func (r *fakeWorkcenterRepo) FindByID(ctx context.Context, tx pgx.Tx, id string) (*entities.Workcenter, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	wc, ok := r.store.workcenters[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(apperrors.ErrWorkcenterNotFound, "рабочий центр %s не найден", id)
	}
	return &wc, nil
}

func (r *fakeWorkcenterRepo) ListEnabled(ctx context.Context) ([]entities.Workcenter, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []entities.Workcenter{}
	for _, wc := range r.store.workcenters {
		if wc.IsEnabled {
			out = append(out, wc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *fakeWorkcenterRepo) SetEnabled(ctx context.Context, id string, enabled bool, reason *string, actorID string, at time.Time) (*entities.Workcenter, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	wc, ok := r.store.workcenters[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(apperrors.ErrWorkcenterNotFound, "рабочий центр %s не найден", id)
	}
	wc.IsEnabled = enabled
	wc.DisabledReason = reason
	wc.DisabledBy = &actorID
	wc.DisabledAt = &at
	r.store.workcenters[id] = wc
	return &wc, nil
}

type fakeLotRepo struct{ store *memStore }

func (r *fakeLotRepo) FindByID(ctx context.Context, tx pgx.Tx, id string) (*entities.Lot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	lot, ok := r.store.lots[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(apperrors.ErrLotNotFound, "партия %s не найдена", id)
	}
	return &lot, nil
}

// --- агрегаты шагов ---

type fakeExecutionRepo struct{ store *memStore }

func (r *fakeExecutionRepo) FindForUpdate(ctx context.Context, tx pgx.Tx, key entities.StepKey) (*entities.StepExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	e, ok := r.store.executions[key]
	if !ok {
		return nil, apperrors.NewNotFoundError(apperrors.ErrExecutionNotFound, "шаг не запущен")
	}
	return &e, nil
}

func (r *fakeExecutionRepo) Insert(ctx context.Context, tx pgx.Tx, s *entities.StepExecution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.executions[s.Key()]; exists {
		return apperrors.ErrConflict
	}
	s.ID = uuid.NewString()
	s.Version = 1
	r.store.executions[s.Key()] = *s
	return nil
}

func (r *fakeExecutionRepo) Update(ctx context.Context, tx pgx.Tx, s *entities.StepExecution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	current, ok := r.store.executions[s.Key()]
	if !ok || current.Version != s.Version {
		return apperrors.NewConflictError("агрегат шага изменен параллельно")
	}
	s.Version++
	r.store.executions[s.Key()] = *s
	return nil
}

func (r *fakeExecutionRepo) ListByOrderAndStep(ctx context.Context, tx pgx.Tx, orderID, stepID string) ([]entities.StepExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []entities.StepExecution{}
	for k, e := range r.store.executions {
		if k.ProductionOrderID == orderID && k.ProcessStepID == stepID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeExecutionRepo) ListByOrder(ctx context.Context, tx pgx.Tx, orderID string) ([]entities.StepExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []entities.StepExecution{}
	for k, e := range r.store.executions {
		if k.ProductionOrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeExecutionRepo) SamplesInWindow(ctx context.Context, workcenterID string, from, to time.Time) ([]entities.ExecutionSample, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]entities.ExecutionSample(nil), r.store.samples[workcenterID]...), nil
}

// --- журнал и качество ---

type fakeLedger struct{ store *memStore }

func (r *fakeLedger) Append(ctx context.Context, tx pgx.Tx, event *entities.ExecutionEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if event.IdempotencyKey != nil {
		for _, e := range r.store.events {
			if e.IdempotencyKey != nil && *e.IdempotencyKey == *event.IdempotencyKey {
				return apperrors.ErrDuplicateKey
			}
		}
	}
	if _, ok := r.store.orders[event.ProductionOrderID]; !ok {
		return apperrors.NewNotFoundError(apperrors.ErrOrderNotFound, "заказ не найден")
	}
	r.store.events = append(r.store.events, *event)
	return nil
}

func (r *fakeLedger) FindByIdempotencyKey(ctx context.Context, key string) (*entities.ExecutionEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, e := range r.store.events {
		if e.IdempotencyKey != nil && *e.IdempotencyKey == key {
			return &e, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// staleLedger отвечает "не найдено" на следующие misses поисков по ключу:
// так выглядит запрос, прочитавший журнал до коммита параллельного запроса.
type staleLedger struct {
	*fakeLedger
	mu     sync.Mutex
	misses int
}

func (r *staleLedger) missNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses = n
}

func (r *staleLedger) FindByIdempotencyKey(ctx context.Context, key string) (*entities.ExecutionEvent, error) {
	r.mu.Lock()
	if r.misses > 0 {
		r.misses--
		r.mu.Unlock()
		return nil, apperrors.ErrNotFound
	}
	r.mu.Unlock()
	return r.fakeLedger.FindByIdempotencyKey(ctx, key)
}

func (r *fakeLedger) List(ctx context.Context, filter entities.EventFilter) ([]entities.ExecutionEvent, uint64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []entities.ExecutionEvent{}
	for _, e := range r.store.events {
		if filter.ProductionOrderID != "" && e.ProductionOrderID != filter.ProductionOrderID {
			continue
		}
		if filter.LotID != "" && (e.LotID == nil || *e.LotID != filter.LotID) {
			continue
		}
		out = append(out, e)
	}
	return out, uint64(len(out)), nil
}

type fakeQualityRepo struct{ store *memStore }

func (r *fakeQualityRepo) Insert(ctx context.Context, tx pgx.Tx, rec *entities.QualityRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	found := false
	for _, e := range r.store.events {
		if e.ID == rec.ExecutionEventID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("внешний ключ: событие %s не найдено", rec.ExecutionEventID)
	}
	r.store.quality = append(r.store.quality, *rec)
	return nil
}

func (r *fakeQualityRepo) ScrapTotal(ctx context.Context, tx pgx.Tx, orderID string) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	total := 0
	for _, q := range r.store.quality {
		if q.ProductionOrderID == orderID && q.Disposition == constants.DispositionScrap {
			total += q.Qty
		}
	}
	return total, nil
}

func (r *fakeQualityRepo) ListByOrder(ctx context.Context, orderID string) ([]entities.QualityRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []entities.QualityRecord{}
	for _, q := range r.store.quality {
		if q.ProductionOrderID == orderID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *fakeQualityRepo) ListByLot(ctx context.Context, lotID string) ([]entities.QualityRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []entities.QualityRecord{}
	for _, q := range r.store.quality {
		if q.LotID != nil && *q.LotID == lotID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *fakeQualityRepo) Summary(ctx context.Context, filter entities.QualitySummaryFilter) ([]entities.QualitySummaryRow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	idx := map[[2]string]int{}
	rows := []entities.QualitySummaryRow{}
	for _, q := range r.store.quality {
		k := [2]string{q.Disposition, q.ReasonCode}
		i, ok := idx[k]
		if !ok {
			i = len(rows)
			idx[k] = i
			rows = append(rows, entities.QualitySummaryRow{Disposition: q.Disposition, ReasonCode: q.ReasonCode})
		}
		rows[i].Qty += q.Qty
		rows[i].Records++
	}
	return rows, nil
}

// --- OEE ---

type fakeShiftRepo struct{ store *memStore }

func (r *fakeShiftRepo) FindActive(ctx context.Context, workcenterID string, dayOfWeek, shiftNumber int) (*entities.ShiftSchedule, error) {
	for _, s := range r.store.shifts {
		if s.WorkcenterID == workcenterID && s.DayOfWeek == dayOfWeek && s.ShiftNumber == shiftNumber && s.IsActive {
			return &s, nil
		}
	}
	return nil, apperrors.ErrShiftNotFound
}

func (r *fakeShiftRepo) ListActiveByDay(ctx context.Context, workcenterID string, dayOfWeek int) ([]entities.ShiftSchedule, error) {
	out := []entities.ShiftSchedule{}
	for _, s := range r.store.shifts {
		if s.WorkcenterID == workcenterID && s.DayOfWeek == dayOfWeek && s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeDowntimeRepo struct{ store *memStore }

func (r *fakeDowntimeRepo) ListOverlapping(ctx context.Context, workcenterID string, from, to time.Time) ([]entities.DowntimeEvent, error) {
	out := []entities.DowntimeEvent{}
	for _, d := range r.store.downtimes {
		if d.WorkcenterID != workcenterID || !d.StartTs.Before(to) {
			continue
		}
		if d.EndTs != nil && !d.EndTs.After(from) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *fakeDowntimeRepo) ListFailures(ctx context.Context, workcenterID string, from, to time.Time) ([]entities.Failure, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	inRange := func(ts time.Time) bool { return !ts.Before(from) && ts.Before(to) }
	out := []entities.Failure{}
	for _, d := range r.store.downtimes {
		if d.DowntimeType != constants.DowntimeUnplanned {
			continue
		}
		if workcenterID != "" && d.WorkcenterID != workcenterID {
			continue
		}
		if !inRange(d.StartTs) && (d.EndTs == nil || !inRange(*d.EndTs)) {
			continue
		}
		out = append(out, entities.Failure{
			WorkcenterID:   d.WorkcenterID,
			WorkcenterCode: r.store.workcenters[d.WorkcenterID].Code,
			StartTs:        d.StartTs,
			EndTs:          d.EndTs,
		})
	}
	return out, nil
}

type fakeSnapshotRepo struct {
	store *memStore
	mu    sync.Mutex
}

func (r *fakeSnapshotRepo) Upsert(ctx context.Context, snap entities.OEESnapshot) (*entities.OEESnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("%s/%s/%d", snap.WorkcenterID, snap.Date.Format(time.DateOnly), snap.ShiftNumber)
	if existing, ok := r.store.snapshots[key]; ok {
		snap.ID = existing.ID
	} else {
		snap.ID = uuid.NewString()
	}
	r.store.snapshots[key] = snap
	return &snap, nil
}

func (r *fakeSnapshotRepo) List(ctx context.Context, filter entities.OEEHistoryFilter) ([]entities.OEESnapshot, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []entities.OEESnapshot{}
	for _, s := range r.store.snapshots {
		out = append(out, s)
	}
	return out, uint64(len(out)), nil
}

// --- кеш и шина ---

var errRedisDown = errors.New("redis: connection refused")

type fakeCache struct {
	mu        sync.Mutex
	data      map[string]string
	down      bool
	published []string
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string]string{}} }

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errRedisDown
	}
	c.data[key] = toString(value)
	return nil
}

func (c *fakeCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return false, errRedisDown
	}
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = toString(value)
	return true, nil
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return "", errRedisDown
	}
	v, ok := c.data[key]
	if !ok {
		return "", apperrors.ErrCacheMiss
	}
	return v, nil
}

func (c *fakeCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errRedisDown
	}
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *fakeCache) Publish(ctx context.Context, channel string, message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errRedisDown
	}
	c.published = append(c.published, channel)
	return nil
}

func (c *fakeCache) setDown(down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down = down
}

// flush теряет все ключи, как после истечения TTL или перезапуска Redis.
func (c *fakeCache) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = map[string]string{}
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return fmt.Sprint(value)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event eventbus.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Name() == name {
			n++
		}
	}
	return n
}
