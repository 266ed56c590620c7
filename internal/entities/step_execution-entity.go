package entities

import (
	"time"

	"mes-system/pkg/constants"
	apperrors "mes-system/pkg/errors"
)

// StepExecution - агрегат по тройке (заказ, шаг, рабочий центр).
// Инвариант: ExecutedQty == GoodQty + ScrapQty, GoodQty >= 0.
type StepExecution struct {
	ID                string     `json:"id"`
	ProductionOrderID string     `json:"production_order_id"`
	ProcessStepID     string     `json:"process_step_id"`
	WorkcenterID      string     `json:"workcenter_id"`
	OperatorID        string     `json:"operator_id"`
	Status            string     `json:"status"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	PlannedQty        int        `json:"planned_qty"`
	ExecutedQty       int        `json:"executed_qty"`
	GoodQty           int        `json:"good_qty"`
	ScrapQty          int        `json:"scrap_qty"`
	ReuseQty          int        `json:"reuse_qty"`
	Version           int        `json:"version"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// StepKey - идентификатор тройки.
type StepKey struct {
	ProductionOrderID string
	ProcessStepID     string
	WorkcenterID      string
}

func (s *StepExecution) Key() StepKey {
	return StepKey{ProductionOrderID: s.ProductionOrderID, ProcessStepID: s.ProcessStepID, WorkcenterID: s.WorkcenterID}
}

// StartStepExecution создает агрегат в статусе IN_PROGRESS.
func StartStepExecution(key StepKey, operatorID string, plannedQty int, now time.Time) *StepExecution {
	return &StepExecution{
		ProductionOrderID: key.ProductionOrderID,
		ProcessStepID:     key.ProcessStepID,
		WorkcenterID:      key.WorkcenterID,
		OperatorID:        operatorID,
		Status:            constants.StepStatusInProgress,
		StartedAt:         now,
		PlannedQty:        plannedQty,
		UpdatedAt:         now,
	}
}

func (s *StepExecution) IsCompleted() bool {
	return s.Status == constants.StepStatusCompleted
}

// Reopen - повторный START по завершенному шагу (доработка партии).
// Счетчики и время начала сохраняются.
func (s *StepExecution) Reopen(operatorID string, now time.Time) error {
	if !s.IsCompleted() {
		return apperrors.NewConflictError("шаг уже запущен")
	}
	s.Status = constants.StepStatusInProgress
	s.CompletedAt = nil
	if operatorID != "" {
		s.OperatorID = operatorID
	}
	s.UpdatedAt = now
	return nil
}

// Count учитывает n деталей как годные до решения по качеству.
// Завершенный шаг детали не принимает, пока его не переоткроет START.
func (s *StepExecution) Count(n int, now time.Time) error {
	if n <= 0 {
		return apperrors.NewValidationError("количество деталей за цикл должно быть больше 0")
	}
	if s.IsCompleted() {
		return apperrors.NewConflictError("шаг завершен, для доработки повторите START")
	}
	s.ExecutedQty += n
	s.GoodQty += n
	s.UpdatedAt = now
	return nil
}

// ApplyQuality списывает qty годных деталей в брак или на повторное использование.
// Списание больше, чем GoodQty, отклоняется.
func (s *StepExecution) ApplyQuality(disposition string, qty int, now time.Time) error {
	if qty <= 0 {
		return apperrors.NewValidationError("количество должно быть больше 0")
	}
	if qty > s.GoodQty {
		return apperrors.NewValidationError("количество %d превышает число годных деталей %d", qty, s.GoodQty).
			WithDetail("good_qty", s.GoodQty)
	}

	switch disposition {
	case constants.DispositionScrap:
		s.ScrapQty += qty
		s.GoodQty -= qty
	case constants.DispositionReuse:
		// детали уходят на повторную обработку и не считаются выпуском шага
		s.ReuseQty += qty
		s.GoodQty -= qty
		s.ExecutedQty -= qty
	default:
		return apperrors.NewValidationError("недопустимое решение по качеству: %s", disposition)
	}
	s.UpdatedAt = now
	return nil
}

// Complete закрывает шаг. goodQty, если задан, не может быть меньше текущего:
// разница сверху учитывается как дополнительные детали.
func (s *StepExecution) Complete(goodQty *int, now time.Time) error {
	if s.IsCompleted() {
		return apperrors.NewConflictError("шаг уже завершен")
	}
	if goodQty != nil {
		switch {
		case *goodQty < 0:
			return apperrors.NewValidationError("goodQty не может быть отрицательным")
		case *goodQty < s.GoodQty:
			return apperrors.NewValidationError("goodQty %d меньше учтенного %d, оформите событие качества", *goodQty, s.GoodQty)
		case *goodQty > s.GoodQty:
			diff := *goodQty - s.GoodQty
			s.ExecutedQty += diff
			s.GoodQty += diff
		}
	}
	s.Status = constants.StepStatusCompleted
	completedAt := now
	s.CompletedAt = &completedAt
	s.UpdatedAt = now
	return nil
}

// Balanced проверяет инвариант счетчиков.
func (s *StepExecution) Balanced() bool {
	return s.GoodQty >= 0 && s.ExecutedQty == s.GoodQty+s.ScrapQty
}
