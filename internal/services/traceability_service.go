package services

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"mes-system/internal/dto"
	"mes-system/internal/entities"
	"mes-system/internal/repositories"
)

const (
	timelineKindEvent   = "event"
	timelineKindQuality = "quality"
	traceEventsLimit    = 5000
)

type TraceabilityServiceInterface interface {
	OrderHistory(ctx context.Context, orderID string) (*dto.OrderTraceDTO, error)
	LotHistory(ctx context.Context, lotID string) (*dto.LotTraceDTO, error)
	Events(ctx context.Context, filter entities.EventFilter) (*dto.ListResponse[entities.ExecutionEvent], error)
}

// TraceabilityService - запросы только на чтение, без побочных эффектов.
type TraceabilityService struct {
	orderRepo     repositories.OrderRepositoryInterface
	lotRepo       repositories.LotRepositoryInterface
	executionRepo repositories.StepExecutionRepositoryInterface
	ledger        repositories.ExecutionEventRepositoryInterface
	qualityRepo   repositories.QualityRecordRepositoryInterface
	logger        *zap.Logger
}

func NewTraceabilityService(
	orderRepo repositories.OrderRepositoryInterface,
	lotRepo repositories.LotRepositoryInterface,
	executionRepo repositories.StepExecutionRepositoryInterface,
	ledger repositories.ExecutionEventRepositoryInterface,
	qualityRepo repositories.QualityRecordRepositoryInterface,
	logger *zap.Logger,
) TraceabilityServiceInterface {
	return &TraceabilityService{
		orderRepo:     orderRepo,
		lotRepo:       lotRepo,
		executionRepo: executionRepo,
		ledger:        ledger,
		qualityRepo:   qualityRepo,
		logger:        logger,
	}
}

func (s *TraceabilityService) OrderHistory(ctx context.Context, orderID string) (*dto.OrderTraceDTO, error) {
	order, err := s.orderRepo.FindByID(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	executions, err := s.executionRepo.ListByOrder(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	events, _, err := s.ledger.List(ctx, entities.EventFilter{ProductionOrderID: orderID, Limit: traceEventsLimit})
	if err != nil {
		return nil, err
	}
	records, err := s.qualityRepo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	trace := &dto.OrderTraceDTO{
		Order:          dto.OrderToDTO(order),
		StepExecutions: make([]dto.StepExecutionDTO, 0, len(executions)),
		Events:         events,
		QualityRecords: records,
	}
	for i := range executions {
		trace.StepExecutions = append(trace.StepExecutions, *dto.StepExecutionToDTO(&executions[i]))
	}
	return trace, nil
}

// LotHistory - хронология событий и записей качества по партии.
func (s *TraceabilityService) LotHistory(ctx context.Context, lotID string) (*dto.LotTraceDTO, error) {
	lot, err := s.lotRepo.FindByID(ctx, nil, lotID)
	if err != nil {
		return nil, err
	}
	events, _, err := s.ledger.List(ctx, entities.EventFilter{LotID: lotID, Limit: traceEventsLimit})
	if err != nil {
		return nil, err
	}
	records, err := s.qualityRepo.ListByLot(ctx, lotID)
	if err != nil {
		return nil, err
	}

	timeline := make([]dto.TimelineEntryDTO, 0, len(events)+len(records))
	for _, e := range events {
		timeline = append(timeline, dto.TimelineEntryDTO{Kind: timelineKindEvent, Timestamp: e.Timestamp, Data: e})
	}
	for _, q := range records {
		timeline = append(timeline, dto.TimelineEntryDTO{Kind: timelineKindQuality, Timestamp: q.Timestamp, Data: q})
	}
	// при равном времени событие журнала идет раньше своей записи качества
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Timestamp.Before(timeline[j].Timestamp)
	})

	return &dto.LotTraceDTO{Lot: lot, Timeline: timeline}, nil
}

func (s *TraceabilityService) Events(ctx context.Context, filter entities.EventFilter) (*dto.ListResponse[entities.ExecutionEvent], error) {
	events, total, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &dto.ListResponse[entities.ExecutionEvent]{
		List:       events,
		Pagination: dto.NewPagination(total, filter.Limit, filter.Offset),
	}, nil
}
