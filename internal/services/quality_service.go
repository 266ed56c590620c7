package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mes-system/internal/dto"
	"mes-system/internal/entities"
	"mes-system/internal/events"
	"mes-system/internal/repositories"
	"mes-system/pkg/constants"
	"mes-system/pkg/eventbus"
	apperrors "mes-system/pkg/errors"
	"mes-system/pkg/utils"
)

type QualityServiceInterface interface {
	RecordQuality(ctx context.Context, req dto.QualityDTO) (*dto.ExecutionResultDTO, error)
	ListByOrder(ctx context.Context, orderID string) ([]entities.QualityRecord, error)
	Summary(ctx context.Context, filter entities.QualitySummaryFilter) (*dto.QualitySummaryDTO, error)
}

type QualityService struct {
	*ingestion
	executionRepo  repositories.StepExecutionRepositoryInterface
	orderRepo      repositories.OrderRepositoryInterface
	qualityRepo    repositories.QualityRecordRepositoryInterface
	deriver        OrderStatusDeriverInterface
	scrapThreshold float64
}

func NewQualityService(
	txManager repositories.TxManagerInterface,
	ledger repositories.ExecutionEventRepositoryInterface,
	gateway IdempotencyGatewayInterface,
	executionRepo repositories.StepExecutionRepositoryInterface,
	orderRepo repositories.OrderRepositoryInterface,
	qualityRepo repositories.QualityRecordRepositoryInterface,
	deriver OrderStatusDeriverInterface,
	publisher EventPublisher,
	idempotencyTTL time.Duration,
	scrapThreshold float64,
	logger *zap.Logger,
) QualityServiceInterface {
	if scrapThreshold <= 0 {
		scrapThreshold = constants.DefaultScrapThreshold
	}
	return &QualityService{
		ingestion: &ingestion{
			txManager: txManager,
			ledger:    ledger,
			gateway:   gateway,
			publisher: publisher,
			ttl:       idempotencyTTL,
			logger:    logger,
			now:       func() time.Time { return time.Now().UTC() },
		},
		executionRepo:  executionRepo,
		orderRepo:      orderRepo,
		qualityRepo:    qualityRepo,
		deriver:        deriver,
		scrapThreshold: scrapThreshold,
	}
}

type qualityPayload struct {
	Disposition string `json:"disposition"`
	ReasonCode  string `json:"reason_code"`
	Qty         int    `json:"qty"`
	Notes       string `json:"notes,omitempty"`
	// AggregateFound - false, если запись качества сохранена без корректировки счетчиков.
	AggregateFound bool `json:"aggregate_found"`
}

// RecordQuality списывает годные детали в брак или на повторное использование.
// Запись качества сохраняется, даже если агрегат шага не найден.
func (s *QualityService) RecordQuality(ctx context.Context, req dto.QualityDTO) (*dto.ExecutionResultDTO, error) {
	return s.run(ctx, ingestCommand{
		eventType:      constants.EventQuality,
		idempotencyKey: req.IdempotencyKey,
		workcenterID:   req.WorkcenterID,
		apply: func(ctx context.Context, tx pgx.Tx) (*dto.ExecutionResultDTO, []eventbus.Event, error) {
			now := s.now()

			execution, err := s.executionRepo.FindForUpdate(ctx, tx, entities.StepKey{
				ProductionOrderID: req.ProductionOrderID,
				ProcessStepID:     req.ProcessStepID,
				WorkcenterID:      req.WorkcenterID,
			})
			switch {
			case errors.Is(err, apperrors.ErrNotFound):
				execution = nil
				s.logger.Warn("Событие качества без агрегата шага, счетчики не изменены",
					zap.String("order_id", req.ProductionOrderID),
					zap.String("step_id", req.ProcessStepID),
					zap.String("workcenter_id", req.WorkcenterID))
			case err != nil:
				return nil, nil, err
			default:
				if err := execution.ApplyQuality(req.Disposition, req.Qty, now); err != nil {
					return nil, nil, err
				}
				if err := s.executionRepo.Update(ctx, tx, execution); err != nil {
					return nil, nil, err
				}
			}

			order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, req.ProductionOrderID)
			if err != nil {
				return nil, nil, err
			}
			scrapBefore, err := s.qualityRepo.ScrapTotal(ctx, tx, order.ID)
			if err != nil {
				return nil, nil, err
			}
			scrapAfter := scrapBefore
			if req.Disposition == constants.DispositionScrap {
				scrapAfter += req.Qty
			}
			totals, err := s.deriver.Apply(ctx, tx, order)
			if err != nil {
				return nil, nil, err
			}

			ledgerEvent, err := newLedgerEvent(constants.EventQuality, req.IdempotencyKey, req.ProductionOrderID,
				req.ProcessStepID, req.WorkcenterID, req.OperatorID, req.LotID.String, qualityPayload{
					Disposition:    req.Disposition,
					ReasonCode:     req.ReasonCode,
					Qty:            req.Qty,
					Notes:          req.Notes.String,
					AggregateFound: execution != nil,
				}, now)
			if err != nil {
				return nil, nil, err
			}
			record := &entities.QualityRecord{
				ID:                uuid.NewString(),
				ExecutionEventID:  ledgerEvent.ID,
				ProductionOrderID: req.ProductionOrderID,
				LotID:             utils.NullStringPtr(req.LotID),
				ProcessStepID:     utils.StringPtr(req.ProcessStepID),
				WorkcenterID:      utils.StringPtr(req.WorkcenterID),
				OperatorID:        utils.StringPtr(req.OperatorID),
				Disposition:       req.Disposition,
				ReasonCode:        req.ReasonCode,
				Qty:               req.Qty,
				Notes:             utils.NullStringPtr(req.Notes),
				Timestamp:         now,
			}

			signaled := order.Type == constants.OrderTypeProduction &&
				CrossesScrapThreshold(order.PlannedQty, scrapBefore, scrapAfter, s.scrapThreshold)

			result := baseResult(ledgerEvent)
			result.StepExecution = dto.StepExecutionToDTO(execution)
			result.Order = totals
			result.QualityRecordID = record.ID
			result.ReplenishmentSignaled = signaled
			if err := s.appendWithResult(ctx, tx, ledgerEvent, result); err != nil {
				return nil, nil, err
			}
			if err := s.qualityRepo.Insert(ctx, tx, record); err != nil {
				return nil, nil, err
			}

			pending := []eventbus.Event{events.QualityRecordedEvent{
				EventID:           ledgerEvent.ID,
				QualityRecordID:   record.ID,
				ProductionOrderID: req.ProductionOrderID,
				ProcessStepID:     req.ProcessStepID,
				WorkcenterID:      req.WorkcenterID,
				Disposition:       req.Disposition,
				ReasonCode:        req.ReasonCode,
				Qty:               req.Qty,
				Timestamp:         now,
			}}
			if signaled {
				s.logger.Warn("Брак по заказу превысил порог, нужен довыпуск",
					zap.String("order_id", order.ID),
					zap.Int("scrap_qty", scrapAfter),
					zap.Int("planned_qty", order.PlannedQty))
				pending = append(pending, events.ReplenishmentSignaledEvent{
					ProductionOrderID: order.ID,
					ScrapQty:          scrapAfter,
					PlannedQty:        order.PlannedQty,
					Threshold:         s.scrapThreshold,
					Timestamp:         now,
				})
			}
			return result, pending, nil
		},
	})
}

// CrossesScrapThreshold - true ровно для того события, на котором накопленный брак
// впервые превысил долю threshold от плана.
func CrossesScrapThreshold(plannedQty, scrapBefore, scrapAfter int, threshold float64) bool {
	if plannedQty <= 0 {
		return false
	}
	limit := threshold * float64(plannedQty)
	// срезаем погрешность float64 на границе
	limit = math.Round(limit*1e9) / 1e9
	return float64(scrapBefore) <= limit && float64(scrapAfter) > limit
}

func (s *QualityService) ListByOrder(ctx context.Context, orderID string) ([]entities.QualityRecord, error) {
	if _, err := s.orderRepo.FindByID(ctx, nil, orderID); err != nil {
		return nil, err
	}
	return s.qualityRepo.ListByOrder(ctx, orderID)
}

func (s *QualityService) Summary(ctx context.Context, filter entities.QualitySummaryFilter) (*dto.QualitySummaryDTO, error) {
	rows, err := s.qualityRepo.Summary(ctx, filter)
	if err != nil {
		return nil, err
	}
	summary := &dto.QualitySummaryDTO{Rows: rows}
	for _, row := range rows {
		switch row.Disposition {
		case constants.DispositionScrap:
			summary.TotalScrap += row.Qty
		case constants.DispositionReuse:
			summary.TotalReuse += row.Qty
		}
	}
	return summary, nil
}
