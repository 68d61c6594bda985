package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/logger"
	"github.com/benvon/smart-todo-reminders/internal/notify"
	"go.uber.org/zap"
)

// DefaultSendTimeout bounds a single send so one stuck recipient cannot stall a batch
const DefaultSendTimeout = 30 * time.Second

var (
	// ErrSendFailed wraps any error returned (or panic raised) by the sender
	ErrSendFailed = errors.New("notification send failed")
	// ErrCommitFailed means the message went out but the state update did not persist
	ErrCommitFailed = errors.New("notification state update failed")
)

// Envelope is one composed notification addressed to one recipient
type Envelope struct {
	// Item identifies the entity the notification is about, e.g. "timer:<id>"
	Item      string
	Recipient string
	Subject   string
	Body      string
}

// CommitFunc persists the state transition that follows a successful send
type CommitFunc func(ctx context.Context) error

// Dispatcher invokes the sender for a single envelope and commits state only on success
type Dispatcher struct {
	sender  notify.Sender
	logger  *zap.Logger
	timeout time.Duration
}

// NewDispatcher creates a new dispatcher. A non-positive timeout selects DefaultSendTimeout.
func NewDispatcher(sender notify.Sender, log *zap.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		sender:  sender,
		logger:  log,
		timeout: timeout,
	}
}

// Dispatch sends env and, if the send succeeded, runs commit.
// The returned error wraps ErrSendFailed or ErrCommitFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope, commit CommitFunc) error {
	masked := logger.MaskEmail(env.Recipient)

	if err := d.send(ctx, env); err != nil {
		d.logger.Error("notification_send_failed",
			zap.String("item", env.Item),
			zap.String("recipient", masked),
			zap.String("subject", logger.SanitizeString(env.Subject, logger.MaxSubjectLength)),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	if commit != nil {
		if err := commit(ctx); err != nil {
			d.logger.Error("notification_commit_failed",
				zap.String("item", env.Item),
				zap.String("recipient", masked),
				zap.Error(err),
			)
			return fmt.Errorf("%w: %w", ErrCommitFailed, err)
		}
	}

	d.logger.Info("notification_sent",
		zap.String("item", env.Item),
		zap.String("recipient", masked),
	)
	return nil
}

func (d *Dispatcher) send(ctx context.Context, env Envelope) (err error) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()

	return d.sender.Send(sendCtx, env.Recipient, env.Subject, env.Body)
}
