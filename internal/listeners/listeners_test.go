package listeners

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mes-system/internal/events"
	"mes-system/pkg/constants"
	"mes-system/pkg/eventbus"
	"mes-system/pkg/metrics"
)

type sentMessage struct {
	messageType  string
	workcenterID string
	payload      interface{}
}

type fakeFeed struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeFeed) Send(messageType, workcenterID string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{messageType: messageType, workcenterID: workcenterID, payload: payload})
	return nil
}

func (f *fakeFeed) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func pieces(order, step, wc string, n, executed int) events.PieceCountedEvent {
	return events.PieceCountedEvent{
		EventID: uuid.NewString(), ProductionOrderID: order, ProcessStepID: step, WorkcenterID: wc,
		Pieces: n, ExecutedQty: executed, OrderStatus: constants.OrderStatusInProgress, Timestamp: time.Now(),
	}
}

func TestLiveFeed_BatchesPieceCounts(t *testing.T) {
	feed := &fakeFeed{}
	l := NewLiveFeedListener(feed, time.Hour, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, l.handle(ctx, pieces("o", "s", "wc-1", 1, 1)))
	require.NoError(t, l.handle(ctx, pieces("o", "s", "wc-1", 2, 3)))
	require.NoError(t, l.handle(ctx, pieces("o", "s", "wc-2", 5, 5)))
	require.NoError(t, l.handle(ctx, events.StepStartedEvent{ProductionOrderID: "o", ProcessStepID: "s2", WorkcenterID: "wc-3"}))

	sent := feed.messages()
	require.Len(t, sent, 1, "остальные события уходят сразу, счета ждут окна")
	assert.Equal(t, constants.DomainEventStepStarted, sent[0].messageType)
	assert.Equal(t, "wc-3", sent[0].workcenterID)

	l.Flush()
	sent = feed.messages()
	require.Len(t, sent, 3)

	batches := map[string]PiecesBatchPayload{}
	for _, m := range sent[1:] {
		assert.Equal(t, MessagePiecesBatch, m.messageType)
		batches[m.workcenterID] = m.payload.(PiecesBatchPayload)
	}
	assert.Equal(t, 3, batches["wc-1"].Pieces)
	assert.Equal(t, 2, batches["wc-1"].Events)
	assert.Equal(t, 3, batches["wc-1"].ExecutedQty)
	assert.Equal(t, 5, batches["wc-2"].Pieces)

	l.Flush()
	assert.Len(t, feed.messages(), 3, "повторный Flush ничего не отправляет")
}

func TestLiveFeed_WindowExpires(t *testing.T) {
	feed := &fakeFeed{}
	l := NewLiveFeedListener(feed, 20*time.Millisecond, zap.NewNop())

	require.NoError(t, l.handle(context.Background(), pieces("o", "s", "wc-1", 4, 4)))
	assert.Eventually(t, func() bool { return len(feed.messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, MessagePiecesBatch, feed.messages()[0].messageType)
}

func TestLiveFeed_ZeroWindowSendsImmediately(t *testing.T) {
	feed := &fakeFeed{}
	l := NewLiveFeedListener(feed, 0, zap.NewNop())

	require.NoError(t, l.handle(context.Background(), pieces("o", "s", "wc-1", 1, 1)))
	sent := feed.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, constants.DomainEventPieceCounted, sent[0].messageType)
	assert.Equal(t, "wc-1", sent[0].workcenterID)
}

type publishCache struct {
	mu        sync.Mutex
	channels  []string
	messages  [][]byte
	failAfter int
}

func (c *publishCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (c *publishCache) SetNX(context.Context, string, interface{}, time.Duration) (bool, error) {
	return true, nil
}
func (c *publishCache) Get(context.Context, string) (string, error) { return "", nil }
func (c *publishCache) Del(context.Context, ...string) error        { return nil }

func (c *publishCache) Publish(_ context.Context, channel string, message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAfter > 0 && len(c.channels) >= c.failAfter {
		return errors.New("redis: connection refused")
	}
	c.channels = append(c.channels, channel)
	c.messages = append(c.messages, message.([]byte))
	return nil
}

func TestRedisRelay_PublishesToPrefixedChannel(t *testing.T) {
	cache := &publishCache{}
	l := NewRedisRelayListener(cache, "mes.events.", zap.NewNop())

	event := events.QualityRecordedEvent{ProductionOrderID: "o", Disposition: constants.DispositionScrap, Qty: 2}
	require.NoError(t, l.handle(context.Background(), event))

	require.Len(t, cache.channels, 1)
	assert.Equal(t, "mes.events.QUALITY_RECORDED", cache.channels[0])

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(cache.messages[0], &decoded))
	assert.Equal(t, "o", decoded["production_order_id"])
	assert.Equal(t, float64(2), decoded["qty"])
}

func TestRedisRelay_ReturnsPublishError(t *testing.T) {
	cache := &publishCache{failAfter: 1}
	l := NewRedisRelayListener(cache, "mes.", zap.NewNop())

	require.NoError(t, l.handle(context.Background(), events.StepStartedEvent{}))
	assert.Error(t, l.handle(context.Background(), events.StepStartedEvent{}))
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetricsListener_CountsThroughBus(t *testing.T) {
	bus := eventbus.New(zap.NewNop(), 16)
	NewMetricsListener(zap.NewNop()).Register(bus)

	wc, step := uuid.NewString(), uuid.NewString()
	before := counterValue(t, metrics.ReplenishmentSignals)

	ctx := context.Background()
	bus.Publish(ctx, pieces("o", step, wc, 3, 3))
	bus.Publish(ctx, pieces("o", step, wc, 2, 5))
	bus.Publish(ctx, events.QualityRecordedEvent{ProcessStepID: step, Disposition: constants.DispositionReuse, Qty: 4})
	bus.Publish(ctx, events.ReplenishmentSignaledEvent{ProductionOrderID: "o"})

	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, bus.Close(closeCtx))

	assert.Equal(t, 5.0, counterValue(t, metrics.PieceCount.WithLabelValues(wc, step)))
	assert.Equal(t, 4.0, counterValue(t, metrics.QualityEvents.WithLabelValues(constants.DispositionReuse, step)))
	assert.Equal(t, before+1, counterValue(t, metrics.ReplenishmentSignals))
}
