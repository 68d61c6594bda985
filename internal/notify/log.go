package notify

import (
	"context"

	"github.com/benvon/smart-todo-reminders/internal/logger"
	"go.uber.org/zap"
)

// LogSender only logs messages. Used for local development and dry runs.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-only sender
func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{logger: log}
}

// Send logs the message envelope
func (s *LogSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := validateRecipient(to); err != nil {
		return err
	}
	s.logger.Info("notification_logged",
		zap.String("to", logger.MaskEmail(to)),
		zap.String("subject", logger.SanitizeString(subject, logger.MaxSubjectLength)),
		zap.Int("body_bytes", len(htmlBody)),
	)
	return nil
}

var _ Sender = (*LogSender)(nil)
