// Package queue carries composed notification emails from the scheduler to the
// mailer process over RabbitMQ.
package queue

import (
	"context"
)

// MessageInterface is one delivered job awaiting settlement. Ack removes it;
// Nack without requeue dead-letters it.
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetJob() *Job
}

// JobQueue is the mail job transport
type JobQueue interface {
	// Enqueue publishes job and returns once the broker confirmed it
	Enqueue(ctx context.Context, job *Job) error

	// Consume streams jobs until ctx ends. prefetchCount bounds unacknowledged
	// deliveries; the caller settles every message.
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	Close() error

	// HealthCheck verifies the broker connection is open
	HealthCheck(ctx context.Context) error
}
