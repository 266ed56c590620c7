package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mes-system/internal/entities"
	"mes-system/pkg/constants"
	"mes-system/pkg/database/postgresql"
	apperrors "mes-system/pkg/errors"
)

var testPool *pgxpool.Pool

// TestMain поднимает схему через миграции, если задана тестовая БД.
func TestMain(m *testing.M) {
	dsn := os.Getenv("MES_TEST_DATABASE_URL")
	if dsn == "" {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	pool, err := postgresql.ConnectDB(ctx, dsn, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "не удалось подключиться к тестовой БД: %v\n", err)
		os.Exit(1)
	}
	if err := postgresql.Migrate(ctx, pool, zap.NewNop()); err != nil {
		pool.Close()
		fmt.Fprintf(os.Stderr, "не удалось применить миграции: %v\n", err)
		os.Exit(1)
	}
	testPool = pool

	code := m.Run()
	pool.Close()
	os.Exit(code)
}

func requireDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testPool == nil {
		t.Skip("MES_TEST_DATABASE_URL не задан")
	}
	cleanupTables(t, testPool)
	return testPool
}

// cleanupTables очищает таблицы; TRUNCATE не задевает построчные триггеры журнала.
func cleanupTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `TRUNCATE TABLE oee_snapshots, shift_schedules, downtime_events,
		quality_records, step_executions, execution_events, lots, production_orders, workcenters,
		process_steps, items RESTART IDENTITY CASCADE`)
	require.NoError(t, err, "не удалось очистить таблицы")
}

type fixture struct {
	itemID       string
	stepID       string
	workcenterID string
}

func seedMasterData(t *testing.T, pool *pgxpool.Pool) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO items (code, name, standard_cycle_time_min) VALUES ('ITM-1', 'Корпус', 0.5) RETURNING id`).Scan(&f.itemID))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO process_steps (code, name, sequence, standard_cycle_time_min) VALUES ('CUT', 'Резка', 1, 0.5) RETURNING id`).Scan(&f.stepID))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO workcenters (code, name) VALUES ('WC-1', 'Пила') RETURNING id`).Scan(&f.workcenterID))
	return f
}

func TestOrderRepository_Upsert(t *testing.T) {
	pool := requireDB(t)
	f := seedMasterData(t, pool)
	repo := NewOrderRepository(pool, zap.NewNop())
	ctx := context.Background()

	order := entities.ProductionOrder{
		ErpOrderCode: "ERP-1", Type: constants.OrderTypeProduction, ItemID: f.itemID,
		PlannedQty: 100, Priority: 1, Status: constants.OrderStatusOpenNotStarted,
	}
	created, inserted, err := repo.Upsert(ctx, nil, order)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, created.ID)

	require.NoError(t, repo.UpdateTotals(ctx, nil, created.ID, constants.OrderStatusInProgress, 10, 12))

	order.PlannedQty = 150
	updated, inserted, err := repo.Upsert(ctx, nil, order)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, 150, updated.PlannedQty)
	// повторный импорт не трогает накопленные итоги
	assert.Equal(t, constants.OrderStatusInProgress, updated.Status)
	assert.Equal(t, 10, updated.ExecutedGoodQty)

	_, err = repo.FindByID(ctx, nil, uuid.NewString())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestExecutionEventRepository_AppendOnly(t *testing.T) {
	pool := requireDB(t)
	f := seedMasterData(t, pool)
	ctx := context.Background()

	order, _, err := NewOrderRepository(pool, zap.NewNop()).Upsert(ctx, nil, entities.ProductionOrder{
		ErpOrderCode: "ERP-2", Type: constants.OrderTypeProduction, ItemID: f.itemID,
		PlannedQty: 10, Status: constants.OrderStatusOpenNotStarted,
	})
	require.NoError(t, err)

	ledger := NewExecutionEventRepository(pool, zap.NewNop())
	key := "start-1"
	event := &entities.ExecutionEvent{
		ID: uuid.NewString(), IdempotencyKey: &key, EventType: constants.EventStart,
		ProductionOrderID: order.ID, ProcessStepID: &f.stepID, WorkcenterID: &f.workcenterID,
		Timestamp: time.Now().UTC(), Payload: []byte(`{}`), Result: []byte(`{"event_id":"x"}`),
	}
	require.NoError(t, NewTxManager(pool).RunInTransaction(ctx, func(tx pgx.Tx) error {
		return ledger.Append(ctx, tx, event)
	}))

	dup := *event
	dup.ID = uuid.NewString()
	err = ledger.Append(ctx, nil, &dup)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateKey)

	stored, err := ledger.FindByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, event.ID, stored.ID)
	assert.JSONEq(t, `{"event_id":"x"}`, string(stored.Result))

	_, err = ledger.FindByIdempotencyKey(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	missingOrder := *event
	missingOrder.ID = uuid.NewString()
	missingOrder.IdempotencyKey = nil
	missingOrder.ProductionOrderID = uuid.NewString()
	err = ledger.Append(ctx, nil, &missingOrder)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	_, err = pool.Exec(ctx, `UPDATE execution_events SET event_type = 'COUNT' WHERE id = $1`, event.ID)
	assert.Error(t, err, "журнал только для добавления")

	list, total, err := ledger.List(ctx, entities.EventFilter{ProductionOrderID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
	assert.Len(t, list, 1)
}

func TestStepExecutionRepository_OptimisticVersion(t *testing.T) {
	pool := requireDB(t)
	f := seedMasterData(t, pool)
	ctx := context.Background()

	order, _, err := NewOrderRepository(pool, zap.NewNop()).Upsert(ctx, nil, entities.ProductionOrder{
		ErpOrderCode: "ERP-3", Type: constants.OrderTypeProduction, ItemID: f.itemID,
		PlannedQty: 10, Status: constants.OrderStatusOpenNotStarted,
	})
	require.NoError(t, err)

	repo := NewStepExecutionRepository(pool, zap.NewNop())
	key := entities.StepKey{ProductionOrderID: order.ID, ProcessStepID: f.stepID, WorkcenterID: f.workcenterID}
	step := entities.StartStepExecution(key, "op", 10, time.Now().UTC())
	require.NoError(t, repo.Insert(ctx, nil, step))
	assert.Equal(t, 1, step.Version)

	again := entities.StartStepExecution(key, "op", 10, time.Now().UTC())
	err = repo.Insert(ctx, nil, again)
	assert.Equal(t, apperrors.CodeConflictIdempotency, apperrors.CodeOf(err))

	stale := *step
	step.ExecutedQty, step.GoodQty = 3, 3
	require.NoError(t, repo.Update(ctx, nil, step))
	assert.Equal(t, 2, step.Version)

	stale.ExecutedQty, stale.GoodQty = 5, 5
	err = repo.Update(ctx, nil, &stale)
	assert.Equal(t, apperrors.CodeConflictIdempotency, apperrors.CodeOf(err))

	// нарушение баланса отвергает CHECK-ограничение
	step.ScrapQty = 1
	assert.Error(t, repo.Update(ctx, nil, step))
}

func TestLockTimeoutToConflict(t *testing.T) {
	err := lockTimeoutToConflict(fmt.Errorf("update: %w", &pgconn.PgError{Code: pgLockNotAvailable}))
	assert.Equal(t, apperrors.CodeConflictIdempotency, apperrors.CodeOf(err))
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	other := &pgconn.PgError{Code: pgUniqueViolation}
	assert.Same(t, other, lockTimeoutToConflict(other))
}

func TestTxManager_LockTimeout(t *testing.T) {
	pool := requireDB(t)
	f := seedMasterData(t, pool)
	ctx := context.Background()

	order, _, err := NewOrderRepository(pool, zap.NewNop()).Upsert(ctx, nil, entities.ProductionOrder{
		ErpOrderCode: "ERP-4", Type: constants.OrderTypeProduction, ItemID: f.itemID,
		PlannedQty: 10, Status: constants.OrderStatusOpenNotStarted,
	})
	require.NoError(t, err)
	repo := NewStepExecutionRepository(pool, zap.NewNop())
	key := entities.StepKey{ProductionOrderID: order.ID, ProcessStepID: f.stepID, WorkcenterID: f.workcenterID}
	require.NoError(t, repo.Insert(ctx, nil, entities.StartStepExecution(key, "op", 10, time.Now().UTC())))

	holder, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer holder.Rollback(ctx)
	_, err = repo.FindForUpdate(ctx, holder, key)
	require.NoError(t, err)

	started := time.Now()
	err = NewTxManager(pool, WithLockTimeout(100*time.Millisecond)).RunInTransaction(ctx, func(tx pgx.Tx) error {
		_, err := repo.FindForUpdate(ctx, tx, key)
		return err
	})
	assert.Equal(t, apperrors.CodeConflictIdempotency, apperrors.CodeOf(err), "занятая строка дает повторяемый конфликт")
	assert.Less(t, time.Since(started), 5*time.Second)
}
