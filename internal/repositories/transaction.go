package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "mes-system/pkg/errors"
)

const pgLockNotAvailable = "55P03"

type TxManagerInterface interface {
	RunInTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

type TxManager struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

type TxOption func(*TxManager)

// WithLockTimeout ограничивает ожидание блокировки строки агрегата.
// По истечении транзакция откатывается с CONFLICT_IDEMPOTENCY, и клиент повторяет запрос.
func WithLockTimeout(d time.Duration) TxOption {
	return func(m *TxManager) { m.lockTimeout = d }
}

func NewTxManager(pool *pgxpool.Pool, opts ...TxOption) TxManagerInterface {
	m := &TxManager{pool: pool}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunInTransaction выполняет fn в одной транзакции: коммит при nil, иначе откат.
// Паника внутри fn откатывает транзакцию и пробрасывается дальше.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("не удалось начать транзакцию: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
			err = lockTimeoutToConflict(err)
		} else if err = tx.Commit(ctx); err != nil {
			err = fmt.Errorf("ошибка при коммите транзакции: %w", err)
		}
	}()

	if m.lockTimeout > 0 {
		// set_config(..., true) действует до конца транзакции, как SET LOCAL
		ms := strconv.FormatInt(m.lockTimeout.Milliseconds(), 10) + "ms"
		if _, err = tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", ms); err != nil {
			return fmt.Errorf("не удалось задать lock_timeout: %w", err)
		}
	}

	err = fn(tx)
	return err
}

// lockTimeoutToConflict превращает истекшее ожидание блокировки в конфликт, который можно повторить.
func lockTimeoutToConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
		return &apperrors.DomainError{
			Code:    apperrors.CodeConflictIdempotency,
			Message: "строка занята параллельным запросом, повторите",
			Err:     err,
		}
	}
	return err
}
