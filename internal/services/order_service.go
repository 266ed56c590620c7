package services

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mes-system/internal/dto"
	"mes-system/internal/entities"
	"mes-system/internal/events"
	"mes-system/internal/repositories"
	"mes-system/pkg/constants"
	"mes-system/pkg/utils"
)

type OrderServiceInterface interface {
	ImportOrder(ctx context.Context, req dto.ImportOrderDTO) (*dto.OrderDTO, error)
	FindOrder(ctx context.Context, id string) (*dto.OrderDTO, error)
	SearchOrders(ctx context.Context, filter entities.OrderFilter) (*dto.ListResponse[dto.OrderDTO], error)
	Recalculate(ctx context.Context, id string) (*dto.OrderTotalsDTO, error)
	SetWorkcenterEnabled(ctx context.Context, workcenterID string, req dto.SetWorkcenterEnabledDTO) (*entities.Workcenter, error)
}

type OrderService struct {
	txManager      repositories.TxManagerInterface
	orderRepo      repositories.OrderRepositoryInterface
	workcenterRepo repositories.WorkcenterRepositoryInterface
	deriver        OrderStatusDeriverInterface
	publisher      EventPublisher
	logger         *zap.Logger
}

func NewOrderService(
	txManager repositories.TxManagerInterface,
	orderRepo repositories.OrderRepositoryInterface,
	workcenterRepo repositories.WorkcenterRepositoryInterface,
	deriver OrderStatusDeriverInterface,
	publisher EventPublisher,
	logger *zap.Logger,
) OrderServiceInterface {
	return &OrderService{
		txManager:      txManager,
		orderRepo:      orderRepo,
		workcenterRepo: workcenterRepo,
		deriver:        deriver,
		publisher:      publisher,
		logger:         logger,
	}
}

// ImportOrder создает заказ из ERP или обновляет план существующего.
// OP_IMPORTED публикуется только при первом импорте.
func (s *OrderService) ImportOrder(ctx context.Context, req dto.ImportOrderDTO) (*dto.OrderDTO, error) {
	order := entities.ProductionOrder{
		ErpOrderCode: req.ErpOrderCode,
		Type:         req.Type,
		ItemID:       req.ItemID,
		PlannedQty:   req.PlannedQty,
		Priority:     req.Priority.Int,
		Status:       constants.OrderStatusOpenNotStarted,
	}
	if req.DueDate.Valid {
		order.DueDate = &req.DueDate.Time
	}

	var (
		saved   *entities.ProductionOrder
		created bool
	)
	err := s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		saved, created, err = s.orderRepo.Upsert(ctx, tx, order)
		if err != nil {
			return err
		}
		if created {
			return nil
		}
		// план мог измениться, статус пересчитывается по новым данным
		totals, err := s.deriver.Recalculate(ctx, tx, saved.ID)
		if err != nil {
			return err
		}
		saved.Status = totals.Status
		saved.ExecutedGoodQty = totals.ExecutedGoodQty
		saved.ExecutedTotalQty = totals.ExecutedTotalQty
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.publisher.Publish(ctx, events.OrderImportedEvent{
			ProductionOrderID: saved.ID,
			ErpOrderCode:      saved.ErpOrderCode,
			OrderType:         saved.Type,
			PlannedQty:        saved.PlannedQty,
			Created:           true,
			Timestamp:         time.Now().UTC(),
		})
	}
	s.logger.Info("Заказ импортирован",
		zap.String("erp_order_code", saved.ErpOrderCode),
		zap.String("order_id", saved.ID),
		zap.Bool("created", created))

	result := dto.OrderToDTO(saved)
	result.Created = created
	return result, nil
}

func (s *OrderService) FindOrder(ctx context.Context, id string) (*dto.OrderDTO, error) {
	order, err := s.orderRepo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	return dto.OrderToDTO(order), nil
}

func (s *OrderService) SearchOrders(ctx context.Context, filter entities.OrderFilter) (*dto.ListResponse[dto.OrderDTO], error) {
	orders, total, err := s.orderRepo.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	list := make([]dto.OrderDTO, 0, len(orders))
	for i := range orders {
		list = append(list, *dto.OrderToDTO(&orders[i]))
	}
	return &dto.ListResponse[dto.OrderDTO]{
		List:       list,
		Pagination: dto.NewPagination(total, filter.Limit, filter.Offset),
	}, nil
}

// Recalculate - ручной пересчет статуса, например после исправления данных.
func (s *OrderService) Recalculate(ctx context.Context, id string) (*dto.OrderTotalsDTO, error) {
	var totals *dto.OrderTotalsDTO
	err := s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		totals, err = s.deriver.Recalculate(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *OrderService) SetWorkcenterEnabled(ctx context.Context, workcenterID string, req dto.SetWorkcenterEnabledDTO) (*entities.Workcenter, error) {
	return s.workcenterRepo.SetEnabled(ctx, workcenterID, req.Enabled, utils.NullStringPtr(req.Reason), req.ActorID, time.Now().UTC())
}
