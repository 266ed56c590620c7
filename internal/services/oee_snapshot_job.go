package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SnapshotJob периодически сохраняет снимки OEE текущих смен.
type SnapshotJob struct {
	oee      OEEServiceInterface
	interval time.Duration
	logger   *zap.Logger
}

func NewSnapshotJob(oee OEEServiceInterface, interval time.Duration, logger *zap.Logger) *SnapshotJob {
	return &SnapshotJob{oee: oee, interval: interval, logger: logger}
}

// Run блокирует до отмены ctx. Интервал 0 отключает задачу.
func (j *SnapshotJob) Run(ctx context.Context) {
	if j.interval <= 0 {
		j.logger.Info("Периодические снимки OEE отключены")
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("Запущены периодические снимки OEE", zap.Duration("interval", j.interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.tick(ctx, time.Now())
		}
	}
}

func (j *SnapshotJob) tick(ctx context.Context, now time.Time) {
	// ночная смена вчерашнего дня может еще идти
	for _, day := range []time.Time{now.AddDate(0, 0, -1), now} {
		stored, err := j.oee.SnapshotActiveShifts(ctx, day)
		if err != nil {
			j.logger.Error("Ошибка периодического снимка OEE", zap.Time("day", day), zap.Error(err))
			continue
		}
		j.logger.Debug("Снимки OEE обновлены", zap.Time("day", day), zap.Int("stored", stored))
	}
}
