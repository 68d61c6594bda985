package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/smart-todo-reminders/internal/logger"
	"github.com/benvon/smart-todo-reminders/internal/queue"
	"go.uber.org/zap"
)

// ErrUnknownJobType is returned for queue jobs the mailer cannot deliver
var ErrUnknownJobType = errors.New("unknown job type")

// Mailer delivers queued send_email jobs through a transport sender
type Mailer struct {
	sender Sender
	queue  queue.JobQueue
	logger *zap.Logger
}

// NewMailer creates a mailer. q is used to re-enqueue jobs for another attempt.
func NewMailer(sender Sender, q queue.JobQueue, log *zap.Logger) *Mailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailer{sender: sender, queue: q, logger: log}
}

// ProcessJob delivers one message and settles it with the broker.
// Delivered jobs are acked. Failed jobs are re-enqueued with an incremented
// retry count until MaxRetries, then dead-lettered.
func (m *Mailer) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	if job.Type != queue.JobTypeSendEmail {
		if nackErr := msg.Nack(false); nackErr != nil { // Unknown job type, send to DLQ
			m.logger.Warn("failed_to_nack_job", zap.Error(nackErr))
		}
		return fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type)
	}

	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("to", logger.MaskEmail(job.To)),
		zap.Int("retry_count", job.RetryCount),
	}

	sendErr := m.sender.Send(ctx, job.To, job.Subject, job.HTMLBody)
	if sendErr == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		m.logger.Info("mail_delivered", fields...)
		return nil
	}

	if errors.Is(sendErr, ErrNoRecipient) || !job.CanRetry() {
		if nackErr := msg.Nack(false); nackErr != nil {
			m.logger.Warn("failed_to_nack_job", zap.Error(nackErr))
		}
		m.logger.Error("mail_dead_lettered", append(fields, zap.Error(sendErr))...)
		return fmt.Errorf("failed to deliver mail job %s: %w", job.ID, sendErr)
	}

	retry := *job
	retry.IncrementRetry()
	if enqueueErr := m.queue.Enqueue(ctx, &retry); enqueueErr != nil {
		if nackErr := msg.Nack(true); nackErr != nil {
			m.logger.Warn("failed_to_nack_job", zap.Error(nackErr))
		}
		return fmt.Errorf("failed to re-enqueue mail job %s: %w", job.ID, enqueueErr)
	}
	if ackErr := msg.Ack(); ackErr != nil {
		m.logger.Warn("failed_to_ack_retried_job", zap.Error(ackErr))
	}

	m.logger.Warn("mail_delivery_retrying", append(fields, zap.Int("max_retries", job.MaxRetries), zap.Error(sendErr))...)
	return fmt.Errorf("failed to deliver mail job %s: %w", job.ID, sendErr)
}
