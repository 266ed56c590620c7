package services

import (
	"context"
	"testing"

	"github.com/aarondl/null/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mes-system/internal/dto"
	"mes-system/internal/entities"
	"mes-system/pkg/constants"
	apperrors "mes-system/pkg/errors"
)

func newTraceability(env *flowEnv) TraceabilityServiceInterface {
	return NewTraceabilityService(
		&fakeOrderRepo{store: env.store},
		&fakeLotRepo{store: env.store},
		&fakeExecutionRepo{store: env.store},
		&fakeLedger{store: env.store},
		&fakeQualityRepo{store: env.store},
		zap.NewNop(),
	)
}

func TestTraceability_LotHistory(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	_, err := env.execution.Scan(ctx, dto.ScanDTO{
		ProductionOrderID: env.orderID, ProcessStepID: env.step1, WorkcenterID: env.wc1, LotID: env.lotID, OperatorID: "op",
	})
	require.NoError(t, err)
	_, err = env.execution.StartStep(ctx, dto.StartStepDTO{
		IdempotencyKey: "start", ProductionOrderID: env.orderID, ProcessStepID: env.step1,
		WorkcenterID: env.wc1, OperatorID: "op", LotID: null.StringFrom(env.lotID),
	})
	require.NoError(t, err)
	_, err = env.count("c", env.step1, env.wc1, 5)
	require.NoError(t, err)
	_, err = env.quality.RecordQuality(ctx, dto.QualityDTO{
		IdempotencyKey: "q", ProductionOrderID: env.orderID, ProcessStepID: env.step1, WorkcenterID: env.wc1,
		OperatorID: "qc", LotID: null.StringFrom(env.lotID), Disposition: constants.DispositionScrap, ReasonCode: "DIM", Qty: 1,
	})
	require.NoError(t, err)

	trace, err := newTraceability(env).LotHistory(ctx, env.lotID)
	require.NoError(t, err)
	assert.Equal(t, "LOT-1", trace.Lot.LotCode)

	// COUNT не несет партию, поэтому в хронологии партии его нет
	kinds := make([]string, 0, len(trace.Timeline))
	for _, entry := range trace.Timeline {
		kinds = append(kinds, entry.Kind)
	}
	assert.Equal(t, []string{"event", "event", "event", "quality"}, kinds)
	for i := 1; i < len(trace.Timeline); i++ {
		assert.False(t, trace.Timeline[i].Timestamp.Before(trace.Timeline[i-1].Timestamp))
	}
	last := trace.Timeline[2].Data.(entities.ExecutionEvent)
	assert.Equal(t, constants.EventQuality, last.EventType)
}

func TestTraceability_OrderHistory(t *testing.T) {
	env := newFlowEnv(t)
	env.start(t, "start", env.step1, env.wc1)
	_, err := env.count("c", env.step1, env.wc1, 3)
	require.NoError(t, err)

	trace, err := newTraceability(env).OrderHistory(context.Background(), env.orderID)
	require.NoError(t, err)
	assert.Equal(t, constants.OrderStatusInProgress, trace.Order.Status)
	require.Len(t, trace.StepExecutions, 1)
	assert.Equal(t, 3, trace.StepExecutions[0].ExecutedQty)
	assert.Len(t, trace.Events, 2)

	_, err = newTraceability(env).OrderHistory(context.Background(), "missing")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}
