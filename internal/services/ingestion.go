package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mes-system/internal/dto"
	"mes-system/internal/entities"
	"mes-system/internal/repositories"
	"mes-system/pkg/eventbus"
	apperrors "mes-system/pkg/errors"
	"mes-system/pkg/metrics"
	"mes-system/pkg/utils"
)

// EventPublisher - часть шины событий, нужная сервисам.
type EventPublisher interface {
	Publish(ctx context.Context, event eventbus.Event)
}

// ingestCommand - одно входящее событие исполнения.
type ingestCommand struct {
	eventType      string
	idempotencyKey string
	workcenterID   string
	// apply выполняется в транзакции и последним шагом дописывает событие в журнал.
	apply func(ctx context.Context, tx pgx.Tx) (*dto.ExecutionResultDTO, []eventbus.Event, error)
}

// ingestion - общий путь приема событий: ключ идемпотентности, транзакция,
// повтор по уникальному индексу журнала, кеш результата, публикация после коммита.
type ingestion struct {
	txManager repositories.TxManagerInterface
	ledger    repositories.ExecutionEventRepositoryInterface
	gateway   IdempotencyGatewayInterface
	publisher EventPublisher
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func (p *ingestion) run(ctx context.Context, cmd ingestCommand) (*dto.ExecutionResultDTO, error) {
	key := cmd.idempotencyKey
	reserved := false
	if key != "" {
		replay, owned := p.checkDuplicate(ctx, key, cmd.eventType)
		if replay != nil {
			return replay, nil
		}
		reserved = owned
	}

	var (
		result  *dto.ExecutionResultDTO
		pending []eventbus.Event
	)
	err := p.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		result, pending, err = cmd.apply(ctx, tx)
		return err
	})
	if err != nil {
		if key == "" {
			return nil, err
		}
		// Параллельный запрос с тем же ключом мог закоммитить первым. Тогда отказ
		// агрегата (шаг уже запущен или завершен) или уникального индекса журнала
		// означает повтор, и ответом служит сохраненный результат.
		stored, lookupErr := p.ledger.FindByIdempotencyKey(ctx, key)
		if lookupErr == nil {
			return p.replayStored(ctx, key, cmd.eventType, stored), nil
		}
		// Резерв снимает только его владелец и только если журнал подтвердил,
		// что ключ не записан: иначе удалим резерв победившего запроса.
		if reserved && errors.Is(lookupErr, apperrors.ErrNotFound) {
			if relErr := p.gateway.Release(ctx, key); relErr != nil {
				p.logger.Warn("Не удалось снять резерв ключа идемпотентности", zap.String("key", key), zap.Error(relErr))
			}
		}
		return nil, err
	}

	if key != "" {
		if err := p.gateway.StoreResult(ctx, key, result, p.ttl); err != nil {
			p.logger.Warn("Не удалось сохранить результат в кеше идемпотентности", zap.String("key", key), zap.Error(err))
		}
	}
	for _, event := range pending {
		p.publisher.Publish(ctx, event)
	}
	metrics.ExecutionEvents.WithLabelValues(cmd.eventType, cmd.workcenterID).Inc()

	p.logger.Info("Событие исполнения принято",
		zap.String("event_type", cmd.eventType),
		zap.String("event_id", result.EventID),
		zap.String("order_id", result.ProductionOrderID),
		zap.String("workcenter_id", cmd.workcenterID))
	return result, nil
}

// checkDuplicate возвращает сохраненный результат, если ключ уже обработан.
// nil означает, что запрос надо обрабатывать: ключ новый, Redis недоступен
// или первая попытка еще не записана (тогда рассудит уникальный индекс).
// Второй результат - true, если резерв ключа взял этот запрос.
func (p *ingestion) checkDuplicate(ctx context.Context, key, eventType string) (*dto.ExecutionResultDTO, bool) {
	outcome, err := p.gateway.CheckAndReserve(ctx, key, p.ttl)
	if err != nil {
		p.logger.Warn("Проверка идемпотентности в кеше недоступна, полагаемся на журнал", zap.String("key", key), zap.Error(err))
		return p.replayFromLedger(ctx, key, eventType), false
	}

	// резерв мог истечь или быть снят раньше, чем результат
	if cached, err := p.gateway.FetchResult(ctx, key); err == nil {
		return p.markReplayed(cached, key, eventType), false
	}
	if replay := p.replayFromLedger(ctx, key, eventType); replay != nil {
		return replay, false
	}
	return nil, outcome == OutcomeNew
}

func (p *ingestion) replayFromLedger(ctx context.Context, key, eventType string) *dto.ExecutionResultDTO {
	stored, err := p.ledger.FindByIdempotencyKey(ctx, key)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			p.logger.Error("Не удалось прочитать журнал по ключу идемпотентности", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
	return p.replayStored(ctx, key, eventType, stored)
}

// replayStored отдает результат из журнала и возвращает его в кеш.
func (p *ingestion) replayStored(ctx context.Context, key, eventType string, stored *entities.ExecutionEvent) *dto.ExecutionResultDTO {
	result := resultFromLedger(stored)
	if err := p.gateway.StoreResult(ctx, key, result, p.ttl); err != nil {
		p.logger.Warn("Не удалось восстановить результат в кеше", zap.String("key", key), zap.Error(err))
	}
	return p.markReplayed(result, key, eventType)
}

func (p *ingestion) markReplayed(result *dto.ExecutionResultDTO, key, eventType string) *dto.ExecutionResultDTO {
	if result.EventType != eventType {
		p.logger.Warn("Ключ идемпотентности повторно использован для другого типа события",
			zap.String("key", key), zap.String("stored", result.EventType), zap.String("requested", eventType))
	}
	metrics.IdempotentReplays.WithLabelValues(result.EventType).Inc()
	p.logger.Info("Повторная отправка, возвращаем сохраненный результат",
		zap.String("key", key), zap.String("event_id", result.EventID))
	result.Replayed = true
	return result
}

// resultFromLedger восстанавливает ответ из записи журнала.
func resultFromLedger(e *entities.ExecutionEvent) *dto.ExecutionResultDTO {
	if len(e.Result) > 0 {
		var result dto.ExecutionResultDTO
		if err := json.Unmarshal(e.Result, &result); err == nil {
			return &result
		}
	}
	result := &dto.ExecutionResultDTO{
		EventID:           e.ID,
		EventType:         e.EventType,
		ProductionOrderID: e.ProductionOrderID,
		Timestamp:         e.Timestamp,
	}
	if e.IdempotencyKey != nil {
		result.IdempotencyKey = *e.IdempotencyKey
	}
	if e.ProcessStepID != nil {
		result.ProcessStepID = *e.ProcessStepID
	}
	if e.WorkcenterID != nil {
		result.WorkcenterID = *e.WorkcenterID
	}
	if e.LotID != nil {
		result.LotID = *e.LotID
	}
	return result
}

// newLedgerEvent готовит запись журнала. Идентификатор известен до вставки,
// чтобы попасть в снимок результата.
func newLedgerEvent(eventType, key, orderID, stepID, workcenterID, operatorID, lotID string, payload interface{}, now time.Time) (*entities.ExecutionEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	event := &entities.ExecutionEvent{
		ID:                uuid.NewString(),
		EventType:         eventType,
		ProductionOrderID: orderID,
		ProcessStepID:     utils.StringPtr(stepID),
		WorkcenterID:      utils.StringPtr(workcenterID),
		OperatorID:        utils.StringPtr(operatorID),
		LotID:             utils.StringPtr(lotID),
		IdempotencyKey:    utils.StringPtr(key),
		Timestamp:         now,
		Payload:           raw,
	}
	return event, nil
}

// appendWithResult сохраняет снимок ответа в записи журнала и дописывает ее.
func (p *ingestion) appendWithResult(ctx context.Context, tx pgx.Tx, event *entities.ExecutionEvent, result *dto.ExecutionResultDTO) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	event.Result = raw
	return p.ledger.Append(ctx, tx, event)
}

func baseResult(event *entities.ExecutionEvent) *dto.ExecutionResultDTO {
	return resultFromLedger(&entities.ExecutionEvent{
		ID:                event.ID,
		EventType:         event.EventType,
		IdempotencyKey:    event.IdempotencyKey,
		ProductionOrderID: event.ProductionOrderID,
		ProcessStepID:     event.ProcessStepID,
		WorkcenterID:      event.WorkcenterID,
		LotID:             event.LotID,
		Timestamp:         event.Timestamp,
	})
}
