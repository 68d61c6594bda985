package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/database"
	"github.com/benvon/smart-todo-reminders/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errTimerClaimed = errors.New("timer is claimed by another pass or no longer pending")

// TimerJob notifies owners of expired timers exactly once per timer. Each timer
// is claimed in the store before its notice is sent, so passes in different
// processes sharing the store never send the same timer concurrently.
type TimerJob struct {
	selector   *TimerSelector
	timers     database.TimerRepositoryInterface
	composer   *Composer
	dispatcher *Dispatcher
	logger     *zap.Logger
	opts       jobOptions
}

// NewTimerJob creates a new timer expiry job
func NewTimerJob(selector *TimerSelector, timers database.TimerRepositoryInterface, composer *Composer, dispatcher *Dispatcher, log *zap.Logger, opts ...JobOption) *TimerJob {
	o := defaultJobOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TimerJob{
		selector:   selector,
		timers:     timers,
		composer:   composer,
		dispatcher: dispatcher,
		logger:     log,
		opts:       o,
	}
}

// Run performs one expiry pass over every due timer
func (j *TimerJob) Run(ctx context.Context) RunResult {
	var result RunResult

	selection, err := j.selector.Select(ctx, j.opts.now())
	if err != nil {
		result.Err = err
		return result
	}

	for _, skip := range selection.Skipped {
		result.Skipped++
		j.logger.Warn("timer_owner_skipped",
			zap.String("item", skip.Item),
			zap.String("user_id", skip.UserID.String()),
			zap.String("reason", skip.Reason),
		)
	}

	for _, due := range selection.Due {
		if err := ctx.Err(); err != nil {
			result.Err = err
			return result
		}
		j.process(ctx, due, &result)
	}

	return result
}

func (j *TimerJob) process(ctx context.Context, due DueTimer, result *RunResult) {
	id := due.Timer.ID
	item := "timer:" + id.String()
	recipient := logger.MaskEmail(due.User.Email)

	now := j.opts.now()
	until := now.Add(j.opts.claimTTL)
	claimed, err := j.timers.Claim(ctx, id, now, until)
	if err != nil {
		result.Failed++
		result.recordFailure(item, recipient, err)
		j.logger.Error("timer_claim_failed", zap.String("item", item), zap.Error(err))
		return
	}
	if !claimed {
		// the selection may be stale if another pass or a stop request got here first
		result.Skipped++
		j.logger.Debug("timer_skipped", zap.String("item", item), zap.Error(errTimerClaimed))
		return
	}

	subject, body := j.composer.TimerExpired(due.User, due.Timer)
	env := Envelope{
		Item:      item,
		Recipient: due.User.Email,
		Subject:   subject,
		Body:      body,
	}

	lost := false
	err = j.dispatcher.Dispatch(ctx, env, func(ctx context.Context) error {
		updated, err := j.timers.MarkNotified(ctx, id, j.opts.now())
		if err != nil {
			return fmt.Errorf("failed to mark timer notified: %w", err)
		}
		lost = !updated
		return nil
	})

	switch {
	case err == nil && lost:
		// the claim expired mid-send and another pass notified the timer first
		result.Skipped++
		j.logger.Warn("timer_claim_lost", zap.String("item", item), zap.Time("claimed_until", until))
	case err == nil:
		result.Sent++
	case errors.Is(err, ErrCommitFailed):
		// the email went out but the flag did not persist; the claim holds off a resend until it expires
		result.Sent++
		result.recordFailure(item, recipient, err)
	default:
		result.Failed++
		result.recordFailure(item, recipient, err)
		j.release(ctx, id, until, item)
	}
}

// release drops the claim after a failed send so the next tick retries
func (j *TimerJob) release(ctx context.Context, id uuid.UUID, until time.Time, item string) {
	if err := j.timers.ReleaseClaim(ctx, id, until); err != nil {
		j.logger.Warn("timer_claim_release_failed", zap.String("item", item), zap.Error(err))
	}
}
