package reminders

import (
	"context"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/database"
	"go.uber.org/zap"
)

// DefaultNotifiedTimerRetention is how long notified timers are kept before purging
const DefaultNotifiedTimerRetention = 72 * time.Hour

// HousekeepingJob deletes timers that were notified longer ago than the retention period
type HousekeepingJob struct {
	timers    database.TimerRepositoryInterface
	retention time.Duration
	logger    *zap.Logger
	opts      jobOptions
}

// NewHousekeepingJob creates a new housekeeping job
func NewHousekeepingJob(timers database.TimerRepositoryInterface, retention time.Duration, log *zap.Logger, opts ...JobOption) *HousekeepingJob {
	o := defaultJobOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if retention <= 0 {
		retention = DefaultNotifiedTimerRetention
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HousekeepingJob{timers: timers, retention: retention, logger: log, opts: o}
}

// Run purges expired notified timers
func (j *HousekeepingJob) Run(ctx context.Context) RunResult {
	var result RunResult
	cutoff := j.opts.now().Add(-j.retention)

	purged, err := j.timers.DeleteNotifiedBefore(ctx, cutoff)
	if err != nil {
		result.Err = err
		return result
	}
	result.Purged = purged

	if purged > 0 {
		j.logger.Info("notified_timers_purged",
			zap.Int64("count", purged),
			zap.Time("cutoff", cutoff),
		)
	}
	return result
}
