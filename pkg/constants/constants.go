// pkg/constants/constants.go
package constants

import "time"

//============== EVENT TYPES ==============

// Типы событий исполнения. Совпадают со значениями в execution_events.event_type.
const (
	EventScan     = "SCAN"
	EventStart    = "START"
	EventCount    = "COUNT"
	EventQuality  = "QUALITY"
	EventComplete = "COMPLETE"
)

//============== QUALITY DISPOSITIONS ==============

const (
	DispositionScrap = "SCRAP_NO_REUSE"
	DispositionReuse = "REUSE"
)

//============== ORDER TYPES ==============

const (
	OrderTypeProduction    = "PRODUCTION"
	OrderTypeReplenishment = "REPLENISHMENT"
)

//============== DOWNTIME TYPES ==============

const (
	DowntimePlanned   = "PLANNED"
	DowntimeUnplanned = "UNPLANNED"
	DowntimeMicroStop = "MICRO_STOP"
)

//============== CACHE KEYS ==============

// Префиксы для ключей в Redis.
const (
	// Резерв ключа идемпотентности.
	// Формат: idem:reserve:<key> -> "1"
	CacheKeyIdempotencyReserve = "idem:reserve:%s"

	// Сохраненный результат обработки события.
	// Формат: idem:result:<key> -> JSON результата
	CacheKeyIdempotencyResult = "idem:result:%s"
)

const (
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultScrapThreshold = 0.05
	DefaultCycleTimeMin   = 1.0
)
