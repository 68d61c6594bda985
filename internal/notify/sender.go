// Package notify holds the send capability the reminder engine dispatches through.
package notify

import (
	"context"
	"errors"
	"strings"
)

// ErrNoRecipient is returned when a message has no destination address
var ErrNoRecipient = errors.New("no recipient address")

// Sender delivers one HTML message. A nil error means the transport accepted it.
// Implementations must bound each call by their own timeout.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, to, subject, htmlBody string) error

// Send calls f
func (f SenderFunc) Send(ctx context.Context, to, subject, htmlBody string) error {
	return f(ctx, to, subject, htmlBody)
}

func validateRecipient(to string) error {
	if strings.TrimSpace(to) == "" {
		return ErrNoRecipient
	}
	return nil
}
