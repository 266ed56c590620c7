package services

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mes-system/internal/dto"
	"mes-system/internal/entities"
	"mes-system/internal/events"
	"mes-system/internal/repositories"
	"mes-system/pkg/constants"
	"mes-system/pkg/eventbus"
	apperrors "mes-system/pkg/errors"
)

type ExecutionServiceInterface interface {
	Scan(ctx context.Context, req dto.ScanDTO) (*dto.ExecutionResultDTO, error)
	StartStep(ctx context.Context, req dto.StartStepDTO) (*dto.ExecutionResultDTO, error)
	CountPieces(ctx context.Context, req dto.CountDTO) (*dto.ExecutionResultDTO, error)
	CompleteStep(ctx context.Context, req dto.CompleteStepDTO) (*dto.ExecutionResultDTO, error)
}

type ExecutionService struct {
	*ingestion
	gate          MaterialFlowGateInterface
	executionRepo repositories.StepExecutionRepositoryInterface
	deriver       OrderStatusDeriverInterface
}

func NewExecutionService(
	txManager repositories.TxManagerInterface,
	ledger repositories.ExecutionEventRepositoryInterface,
	gateway IdempotencyGatewayInterface,
	gate MaterialFlowGateInterface,
	executionRepo repositories.StepExecutionRepositoryInterface,
	deriver OrderStatusDeriverInterface,
	publisher EventPublisher,
	idempotencyTTL time.Duration,
	logger *zap.Logger,
) ExecutionServiceInterface {
	return &ExecutionService{
		ingestion: &ingestion{
			txManager: txManager,
			ledger:    ledger,
			gateway:   gateway,
			publisher: publisher,
			ttl:       idempotencyTTL,
			logger:    logger,
			now:       func() time.Time { return time.Now().UTC() },
		},
		gate:          gate,
		executionRepo: executionRepo,
		deriver:       deriver,
	}
}

type scanPayload struct {
	Barcode string `json:"barcode,omitempty"`
}

func (s *ExecutionService) Scan(ctx context.Context, req dto.ScanDTO) (*dto.ExecutionResultDTO, error) {
	key := req.IdempotencyKey.String
	return s.run(ctx, ingestCommand{
		eventType:      constants.EventScan,
		idempotencyKey: key,
		workcenterID:   req.WorkcenterID,
		apply: func(ctx context.Context, tx pgx.Tx) (*dto.ExecutionResultDTO, []eventbus.Event, error) {
			if _, err := s.gate.Check(ctx, tx, GateRequest{
				ProductionOrderID: req.ProductionOrderID,
				ProcessStepID:     req.ProcessStepID,
				WorkcenterID:      req.WorkcenterID,
				LotID:             req.LotID,
			}); err != nil {
				return nil, nil, err
			}

			now := s.now()
			ledgerEvent, err := newLedgerEvent(constants.EventScan, key, req.ProductionOrderID, req.ProcessStepID,
				req.WorkcenterID, req.OperatorID, req.LotID, scanPayload{Barcode: req.Barcode.String}, now)
			if err != nil {
				return nil, nil, err
			}
			result := baseResult(ledgerEvent)
			if err := s.appendWithResult(ctx, tx, ledgerEvent, result); err != nil {
				return nil, nil, err
			}

			return result, []eventbus.Event{events.BarcodeScannedEvent{
				EventID:           ledgerEvent.ID,
				ProductionOrderID: req.ProductionOrderID,
				ProcessStepID:     req.ProcessStepID,
				WorkcenterID:      req.WorkcenterID,
				LotID:             req.LotID,
				OperatorID:        req.OperatorID,
				Timestamp:         now,
			}}, nil
		},
	})
}

type startPayload struct {
	Reopened bool `json:"reopened"`
}

// StartStep создает агрегат или переоткрывает завершенный для доработки.
// Повторный START по шагу в работе - CONFLICT_IDEMPOTENCY.
func (s *ExecutionService) StartStep(ctx context.Context, req dto.StartStepDTO) (*dto.ExecutionResultDTO, error) {
	return s.run(ctx, ingestCommand{
		eventType:      constants.EventStart,
		idempotencyKey: req.IdempotencyKey,
		workcenterID:   req.WorkcenterID,
		apply: func(ctx context.Context, tx pgx.Tx) (*dto.ExecutionResultDTO, []eventbus.Event, error) {
			gated, err := s.gate.Check(ctx, tx, GateRequest{
				ProductionOrderID: req.ProductionOrderID,
				ProcessStepID:     req.ProcessStepID,
				WorkcenterID:      req.WorkcenterID,
				LotID:             req.LotID.String,
			})
			if err != nil {
				return nil, nil, err
			}

			now := s.now()
			stepKey := entities.StepKey{
				ProductionOrderID: req.ProductionOrderID,
				ProcessStepID:     req.ProcessStepID,
				WorkcenterID:      req.WorkcenterID,
			}
			reopened := false
			execution, err := s.executionRepo.FindForUpdate(ctx, tx, stepKey)
			switch {
			case errors.Is(err, apperrors.ErrNotFound):
				execution = entities.StartStepExecution(stepKey, req.OperatorID, gated.Order.PlannedQty, now)
				if err := s.executionRepo.Insert(ctx, tx, execution); err != nil {
					return nil, nil, err
				}
			case err != nil:
				return nil, nil, err
			default:
				if err := execution.Reopen(req.OperatorID, now); err != nil {
					return nil, nil, err
				}
				if err := s.executionRepo.Update(ctx, tx, execution); err != nil {
					return nil, nil, err
				}
				reopened = true
				s.logger.Info("Шаг переоткрыт для доработки",
					zap.String("order_id", req.ProductionOrderID),
					zap.String("step_id", req.ProcessStepID),
					zap.String("workcenter_id", req.WorkcenterID))
			}

			ledgerEvent, err := newLedgerEvent(constants.EventStart, req.IdempotencyKey, req.ProductionOrderID,
				req.ProcessStepID, req.WorkcenterID, req.OperatorID, req.LotID.String, startPayload{Reopened: reopened}, now)
			if err != nil {
				return nil, nil, err
			}
			result := baseResult(ledgerEvent)
			result.StepExecution = dto.StepExecutionToDTO(execution)
			if err := s.appendWithResult(ctx, tx, ledgerEvent, result); err != nil {
				return nil, nil, err
			}

			return result, []eventbus.Event{events.StepStartedEvent{
				EventID:           ledgerEvent.ID,
				ProductionOrderID: req.ProductionOrderID,
				ProcessStepID:     req.ProcessStepID,
				WorkcenterID:      req.WorkcenterID,
				OperatorID:        req.OperatorID,
				Reopened:          reopened,
				Timestamp:         now,
			}}, nil
		},
	})
}

type countPayload struct {
	PiecesPerCycle int    `json:"pieces_per_cycle"`
	Source         string `json:"source,omitempty"`
}

func (s *ExecutionService) CountPieces(ctx context.Context, req dto.CountDTO) (*dto.ExecutionResultDTO, error) {
	pieces := 1
	if req.PiecesPerCycle.Valid {
		pieces = req.PiecesPerCycle.Int
	}
	key := req.IdempotencyKey.String

	return s.run(ctx, ingestCommand{
		eventType:      constants.EventCount,
		idempotencyKey: key,
		workcenterID:   req.WorkcenterID,
		apply: func(ctx context.Context, tx pgx.Tx) (*dto.ExecutionResultDTO, []eventbus.Event, error) {
			now := s.now()
			execution, err := s.executionRepo.FindForUpdate(ctx, tx, entities.StepKey{
				ProductionOrderID: req.ProductionOrderID,
				ProcessStepID:     req.ProcessStepID,
				WorkcenterID:      req.WorkcenterID,
			})
			if err != nil {
				return nil, nil, err
			}
			if err := execution.Count(pieces, now); err != nil {
				return nil, nil, err
			}
			if err := s.executionRepo.Update(ctx, tx, execution); err != nil {
				return nil, nil, err
			}
			totals, err := s.deriver.Recalculate(ctx, tx, req.ProductionOrderID)
			if err != nil {
				return nil, nil, err
			}

			operator := req.OperatorID.String
			if operator == "" {
				operator = execution.OperatorID
			}
			ledgerEvent, err := newLedgerEvent(constants.EventCount, key, req.ProductionOrderID, req.ProcessStepID,
				req.WorkcenterID, operator, "", countPayload{PiecesPerCycle: pieces, Source: req.Source.String}, now)
			if err != nil {
				return nil, nil, err
			}
			result := baseResult(ledgerEvent)
			result.StepExecution = dto.StepExecutionToDTO(execution)
			result.Order = totals
			if err := s.appendWithResult(ctx, tx, ledgerEvent, result); err != nil {
				return nil, nil, err
			}

			return result, []eventbus.Event{events.PieceCountedEvent{
				EventID:           ledgerEvent.ID,
				ProductionOrderID: req.ProductionOrderID,
				ProcessStepID:     req.ProcessStepID,
				WorkcenterID:      req.WorkcenterID,
				Pieces:            pieces,
				ExecutedQty:       execution.ExecutedQty,
				OrderStatus:       totals.Status,
				Timestamp:         now,
			}}, nil
		},
	})
}

type completePayload struct {
	GoodQty *int `json:"good_qty,omitempty"`
}

func (s *ExecutionService) CompleteStep(ctx context.Context, req dto.CompleteStepDTO) (*dto.ExecutionResultDTO, error) {
	key := req.IdempotencyKey.String
	var goodQty *int
	if req.GoodQty.Valid {
		value := req.GoodQty.Int
		goodQty = &value
	}

	return s.run(ctx, ingestCommand{
		eventType:      constants.EventComplete,
		idempotencyKey: key,
		workcenterID:   req.WorkcenterID,
		apply: func(ctx context.Context, tx pgx.Tx) (*dto.ExecutionResultDTO, []eventbus.Event, error) {
			now := s.now()
			execution, err := s.executionRepo.FindForUpdate(ctx, tx, entities.StepKey{
				ProductionOrderID: req.ProductionOrderID,
				ProcessStepID:     req.ProcessStepID,
				WorkcenterID:      req.WorkcenterID,
			})
			if err != nil {
				return nil, nil, err
			}
			if err := execution.Complete(goodQty, now); err != nil {
				return nil, nil, err
			}
			if err := s.executionRepo.Update(ctx, tx, execution); err != nil {
				return nil, nil, err
			}
			totals, err := s.deriver.Recalculate(ctx, tx, req.ProductionOrderID)
			if err != nil {
				return nil, nil, err
			}

			operator := req.OperatorID.String
			if operator == "" {
				operator = execution.OperatorID
			}
			ledgerEvent, err := newLedgerEvent(constants.EventComplete, key, req.ProductionOrderID, req.ProcessStepID,
				req.WorkcenterID, operator, "", completePayload{GoodQty: goodQty}, now)
			if err != nil {
				return nil, nil, err
			}
			result := baseResult(ledgerEvent)
			result.StepExecution = dto.StepExecutionToDTO(execution)
			result.Order = totals
			if err := s.appendWithResult(ctx, tx, ledgerEvent, result); err != nil {
				return nil, nil, err
			}

			return result, []eventbus.Event{events.StepCompletedEvent{
				EventID:           ledgerEvent.ID,
				ProductionOrderID: req.ProductionOrderID,
				ProcessStepID:     req.ProcessStepID,
				WorkcenterID:      req.WorkcenterID,
				GoodQty:           execution.GoodQty,
				ScrapQty:          execution.ScrapQty,
				OrderStatus:       totals.Status,
				Timestamp:         now,
			}}, nil
		},
	})
}
