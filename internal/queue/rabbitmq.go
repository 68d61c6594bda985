package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	routingKeyJobs = "jobs"
	routingKeyDLQ  = "dlq"
)

var (
	// ErrPublishNotConfirmed is returned when the broker nacks a published job
	ErrPublishNotConfirmed = errors.New("publish not confirmed by broker")
	// ErrJobExpired is returned for jobs past their NotAfter deadline
	ErrJobExpired = errors.New("job expired")
)

// Topology names the broker objects the mail queue uses. Failed deliveries on
// Queue are dead-lettered through Exchange into DeadLetterQueue.
type Topology struct {
	Exchange        string
	Queue           string
	DeadLetterQueue string
}

// DefaultTopology returns the names used when no topology is configured
func DefaultTopology() Topology {
	return Topology{
		Exchange:        "reminder_mail",
		Queue:           "reminder_mail_jobs",
		DeadLetterQueue: "reminder_mail_jobs_dlq",
	}
}

// Option configures a RabbitMQQueue
type Option func(*RabbitMQQueue)

// WithTopology overrides the exchange and queue names
func WithTopology(t Topology) Option {
	return func(q *RabbitMQQueue) {
		q.topology = t
	}
}

// RabbitMQQueue implements JobQueue using RabbitMQ. Publishing uses a channel in
// confirm mode; every consumer gets its own channel.
type RabbitMQQueue struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	publishMu sync.Mutex
	topology  Topology
}

// NewRabbitMQQueue dials the broker, enables publisher confirms and declares the topology
func NewRabbitMQQueue(amqpURL string, opts ...Option) (*RabbitMQQueue, error) {
	q := &RabbitMQQueue{topology: DefaultTopology()}
	for _, opt := range opts {
		opt(q)
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	q.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close() // Best effort; the open error is what matters
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	q.channel = ch

	if err := q.declare(); err != nil {
		_ = conn.Close() // Best effort; the declare error is what matters
		return nil, fmt.Errorf("failed to setup queues: %w", err)
	}

	return q, nil
}

func (q *RabbitMQQueue) declare() error {
	t := q.topology

	if err := q.channel.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	if err := q.channel.ExchangeDeclare(t.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", t.Exchange, err)
	}

	queues := []struct {
		name       string
		routingKey string
		args       amqp.Table
	}{
		{name: t.DeadLetterQueue, routingKey: routingKeyDLQ},
		{name: t.Queue, routingKey: routingKeyJobs, args: amqp.Table{
			"x-dead-letter-exchange":    t.Exchange,
			"x-dead-letter-routing-key": routingKeyDLQ,
		}},
	}
	for _, qd := range queues {
		if _, err := q.channel.QueueDeclare(qd.name, true, false, false, false, qd.args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", qd.name, err)
		}
		if err := q.channel.QueueBind(qd.name, qd.routingKey, t.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", qd.name, err)
		}
	}
	return nil
}

// newPublishing encodes job as a persistent message. A NotAfter deadline becomes
// the per-message TTL so the broker drops mail that would arrive too late.
func newPublishing(job *Job, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal job: %w", err)
	}

	p := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID.String(),
		Timestamp:    job.CreatedAt,
		Type:         string(job.Type),
	}
	if job.NotAfter != nil {
		ttl := job.NotAfter.Sub(now)
		if ttl <= 0 {
			return amqp.Publishing{}, fmt.Errorf("%w: %s", ErrJobExpired, job.ID)
		}
		p.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}
	return p, nil
}

// Enqueue publishes a job and waits for the broker confirmation
func (q *RabbitMQQueue) Enqueue(ctx context.Context, job *Job) error {
	publishing, err := newPublishing(job, time.Now())
	if err != nil {
		return err
	}

	q.publishMu.Lock()
	confirmation, err := q.channel.PublishWithDeferredConfirmWithContext(ctx, q.topology.Exchange, routingKeyJobs, false, false, publishing)
	q.publishMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to await publish confirmation: %w", err)
	}
	if !acked {
		return ErrPublishNotConfirmed
	}
	return nil
}

// decodeJob parses a delivery body. Expired jobs are reported with ErrJobExpired.
func decodeJob(body []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.IsExpired() {
		return &job, fmt.Errorf("%w: %s", ErrJobExpired, job.ID)
	}
	return &job, nil
}

// Consume returns a channel of messages from the queue. Undecodable and expired
// jobs are dead-lettered before they reach the caller.
func (q *RabbitMQQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error) {
	consumeCh, err := q.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer channel: %w", err)
	}

	if err := consumeCh.Qos(prefetchCount, 0, false); err != nil {
		_ = consumeCh.Close() // Best effort; the QoS error is what matters
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	// Manual ack; the consumer tag is generated by the broker.
	deliveries, err := consumeCh.Consume(q.topology.Queue, "", false, false, false, false, nil)
	if err != nil {
		_ = consumeCh.Close() // Best effort; the consume error is what matters
		return nil, nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	msgChan := make(chan *Message, prefetchCount)
	errChan := make(chan error, 1)

	report := func(err error) {
		select {
		case errChan <- err:
		default:
		}
	}

	go func() {
		defer close(msgChan)
		defer close(errChan)
		defer func() {
			_ = consumeCh.Close() // Channel may already be closed by the broker
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					report(errors.New("delivery channel closed"))
					return
				}

				job, err := decodeJob(delivery.Body)
				if err != nil {
					_ = delivery.Nack(false, false)
					if !errors.Is(err, ErrJobExpired) {
						report(err)
					}
					continue
				}

				msg := &Message{
					Job:         job,
					DeliveryTag: delivery.DeliveryTag,
					Channel:     consumeCh,
				}

				select {
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				case msgChan <- msg:
				}
			}
		}
	}()

	return msgChan, errChan, nil
}

// HealthCheck reports whether the connection and publishing channel are open
func (q *RabbitMQQueue) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.conn == nil || q.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	if q.channel == nil || q.channel.IsClosed() {
		return errors.New("rabbitmq channel closed")
	}
	return nil
}

// Close closes the publishing channel and the connection
func (q *RabbitMQQueue) Close() error {
	var err error
	if q.channel != nil {
		err = q.channel.Close()
	}
	if q.conn != nil {
		err = errors.Join(err, q.conn.Close())
	}
	return err
}

var _ JobQueue = (*RabbitMQQueue)(nil)
