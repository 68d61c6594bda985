package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/queue"
)

// QueueSender hands messages to the mail queue. Success means the broker confirmed
// the job; the mailer worker performs the SMTP delivery.
type QueueSender struct {
	queue   queue.JobQueue
	timeout time.Duration
	ttl     time.Duration
}

// NewQueueSender creates a sender publishing send_email jobs. Jobs undelivered after
// ttl are dropped by the broker; zero disables expiry.
func NewQueueSender(q queue.JobQueue, timeout, ttl time.Duration) *QueueSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &QueueSender{queue: q, timeout: timeout, ttl: ttl}
}

// Send publishes one mail job and waits for the broker confirmation
func (s *QueueSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := validateRecipient(to); err != nil {
		return err
	}

	job := queue.NewEmailJob(to, subject, htmlBody)
	if s.ttl > 0 {
		notAfter := time.Now().Add(s.ttl)
		job.NotAfter = &notAfter
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue mail job: %w", err)
	}
	return nil
}

var _ Sender = (*QueueSender)(nil)
