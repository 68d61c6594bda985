package reminders

import (
	"context"
	"errors"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/dedup"
	"github.com/benvon/smart-todo-reminders/internal/logger"
	"go.uber.org/zap"
)

const (
	// DefaultDigestMarkerTTL keeps a digest marker past the end of its local day
	DefaultDigestMarkerTTL = 36 * time.Hour
	// DefaultTimerClaimTTL bounds how long a crashed pass can hold a timer
	DefaultTimerClaimTTL = 2 * time.Minute
)

// JobOption configures a DigestJob, TimerJob or HousekeepingJob
type JobOption func(*jobOptions)

type jobOptions struct {
	now       func() time.Time
	marker    dedup.Marker
	markerTTL time.Duration
	claimTTL  time.Duration
}

func defaultJobOptions() jobOptions {
	return jobOptions{
		now:       time.Now,
		markerTTL: DefaultDigestMarkerTTL,
		claimTTL:  DefaultTimerClaimTTL,
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) JobOption {
	return func(o *jobOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithDigestMarker enables once-per-day digest delivery tracked in m
func WithDigestMarker(m dedup.Marker, ttl time.Duration) JobOption {
	return func(o *jobOptions) {
		o.marker = m
		if ttl > 0 {
			o.markerTTL = ttl
		}
	}
}

// WithClaimTTL sets how long a timer stays claimed by the pass sending it.
// It must exceed the send timeout.
func WithClaimTTL(ttl time.Duration) JobOption {
	return func(o *jobOptions) {
		if ttl > 0 {
			o.claimTTL = ttl
		}
	}
}

// DigestJob sends each user with todos dated today one summary message
type DigestJob struct {
	selector   *DigestSelector
	composer   *Composer
	dispatcher *Dispatcher
	logger     *zap.Logger
	opts       jobOptions
}

// NewDigestJob creates a new digest job
func NewDigestJob(selector *DigestSelector, composer *Composer, dispatcher *Dispatcher, log *zap.Logger, opts ...JobOption) *DigestJob {
	o := defaultJobOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DigestJob{
		selector:   selector,
		composer:   composer,
		dispatcher: dispatcher,
		logger:     log,
		opts:       o,
	}
}

// Run performs one digest pass
func (j *DigestJob) Run(ctx context.Context) RunResult {
	var result RunResult
	now := j.opts.now()

	selection, err := j.selector.Select(ctx, now)
	if err != nil {
		result.Err = err
		return result
	}

	for _, skip := range selection.Skipped {
		result.Skipped++
		j.logger.Warn("digest_recipient_skipped",
			zap.String("item", skip.Item),
			zap.String("user_id", skip.UserID.String()),
			zap.String("reason", skip.Reason),
		)
	}

	if len(selection.Batches) == 0 {
		j.logger.Debug("digest_no_todos_today",
			zap.Time("window_start", selection.WindowStart),
			zap.Time("window_end", selection.WindowEnd),
		)
		return result
	}

	for _, batch := range selection.Batches {
		if err := ctx.Err(); err != nil {
			result.Err = err
			return result
		}

		item := "digest:" + batch.User.ID.String()
		key := dedup.DigestKey(batch.User.ID, selection.WindowStart)

		if j.alreadySent(ctx, key) {
			result.Skipped++
			continue
		}

		subject, body := j.composer.Digest(batch.User, batch.Todos, now)
		env := Envelope{
			Item:      item,
			Recipient: batch.User.Email,
			Subject:   subject,
			Body:      body,
		}

		err := j.dispatcher.Dispatch(ctx, env, j.commitFor(key))
		switch {
		case err == nil:
			result.Sent++
		case errors.Is(err, ErrCommitFailed):
			// delivered, but the marker write failed; a later pass may repeat it
			result.Sent++
			result.recordFailure(item, logger.MaskEmail(env.Recipient), err)
		default:
			result.Failed++
			result.recordFailure(item, logger.MaskEmail(env.Recipient), err)
		}
	}

	return result
}

func (j *DigestJob) alreadySent(ctx context.Context, key string) bool {
	if j.opts.marker == nil {
		return false
	}
	seen, err := j.opts.marker.Seen(ctx, key)
	if err != nil {
		j.logger.Warn("digest_marker_lookup_failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if seen {
		j.logger.Debug("digest_already_sent_today", zap.String("key", key))
	}
	return seen
}

func (j *DigestJob) commitFor(key string) CommitFunc {
	if j.opts.marker == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return j.opts.marker.Mark(ctx, key, j.opts.markerTTL)
	}
}
