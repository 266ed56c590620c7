package constants

// --- СТАТУСЫ ПРОИЗВОДСТВЕННЫХ ЗАКАЗОВ (Совпадает со значениями в БД) ---
const (
	OrderStatusOpenNotStarted = "OPEN_NOT_STARTED"
	OrderStatusInProgress     = "IN_PROGRESS"
	OrderStatusOpenPartial    = "OPEN_PARTIAL"
	OrderStatusClosed         = "CLOSED"
)

// --- СТАТУСЫ ВЫПОЛНЕНИЯ ШАГА ---
const (
	StepStatusInProgress = "IN_PROGRESS"
	StepStatusCompleted  = "COMPLETED"
)

// --- ДОМЕННЫЕ СОБЫТИЯ ---
const (
	DomainEventOpImported            = "OP_IMPORTED"
	DomainEventBarcodeScanned        = "BARCODE_SCANNED"
	DomainEventStepStarted           = "STEP_STARTED"
	DomainEventPieceCounted          = "PIECE_COUNTED"
	DomainEventQualityRecorded       = "QUALITY_RECORDED"
	DomainEventStepCompleted         = "STEP_COMPLETED"
	DomainEventReplenishmentSignaled = "REPLENISHMENT_SIGNALED"
)
