package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/config"
	"github.com/benvon/smart-todo-reminders/internal/database"
	"github.com/benvon/smart-todo-reminders/internal/dedup"
	"github.com/benvon/smart-todo-reminders/internal/handlers"
	"github.com/benvon/smart-todo-reminders/internal/notify"
	"github.com/benvon/smart-todo-reminders/internal/queue"
	"github.com/benvon/smart-todo-reminders/internal/reminders"
	"go.uber.org/zap"
)

// Cadence names registered besides the digest slots
const (
	CadenceTimers       = "timers"
	CadenceHousekeeping = "housekeeping"
)

// Engine holds the wired scheduler and the resources behind it
type Engine struct {
	Scheduler      *reminders.Scheduler
	DigestSelector *reminders.DigestSelector
	TimerSelector  *reminders.TimerSelector
	Timers         *database.TimerRepository
	Users          *database.UserRepository
	Location       *time.Location

	checks  map[string]handlers.CheckFunc
	closers []func() error
	logger  *zap.Logger
}

// Option configures New
type Option func(*options)

type options struct {
	sender notify.Sender
	db     *database.DB
}

// WithSender overrides the sender selected by cfg.Notifier
func WithSender(s notify.Sender) Option {
	return func(o *options) {
		o.sender = s
	}
}

// WithDatabase uses an already opened database instead of cfg.DatabaseURL.
// The caller keeps ownership of db.
func WithDatabase(db *database.DB) Option {
	return func(o *options) {
		o.db = db
	}
}

// New connects the stores, migrates the schema and registers every cadence.
// The scheduler is returned unstarted.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (_ *Engine, err error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		checks: make(map[string]handlers.CheckFunc),
		logger: log,
	}
	defer func() {
		if err != nil {
			_ = e.Close() // Best effort on a failed build
		}
	}()

	loc, err := cfg.Reminders.Location()
	if err != nil {
		return nil, err
	}
	e.Location = loc

	db := o.db
	if db == nil {
		db, err = database.New(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		e.closers = append(e.closers, db.Close)
		log.Info("connected_to_database", zap.String("dialect", string(db.Dialect())))
	}
	e.checks["database"] = db.PingContext

	if err := db.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	sender := o.sender
	if sender == nil {
		sender, err = e.newSender(cfg)
		if err != nil {
			return nil, err
		}
	}

	var marker dedup.Marker
	if cfg.Reminders.DigestDedup {
		rm, err := dedup.NewRedisMarker(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		e.closers = append(e.closers, rm.Close)
		e.checks["redis"] = rm.Ping
		marker = rm
		log.Info("connected_to_redis")
	}

	users := database.NewUserRepository(db)
	todos := database.NewTodoRepository(db)
	timers := database.NewTimerRepository(db)
	e.Timers = timers
	e.Users = users

	composer := reminders.NewComposer(loc)
	dispatcher := reminders.NewDispatcher(sender, log, cfg.Reminders.SendTimeout())
	e.DigestSelector = reminders.NewDigestSelector(todos, users, loc)
	e.TimerSelector = reminders.NewTimerSelector(timers, users)
	e.Scheduler = reminders.NewScheduler(log)

	cadences, err := Cadences(cfg.Reminders, loc)
	if err != nil {
		return nil, err
	}

	var digestOpts []reminders.JobOption
	if marker != nil {
		digestOpts = append(digestOpts, reminders.WithDigestMarker(marker, reminders.DefaultDigestMarkerTTL))
	}
	timerJob := reminders.NewTimerJob(e.TimerSelector, timers, composer, dispatcher, log,
		reminders.WithClaimTTL(TimerClaimTTL(cfg.Reminders)))
	digestJob := reminders.NewDigestJob(e.DigestSelector, composer, dispatcher, log, digestOpts...)
	housekeeping := reminders.NewHousekeepingJob(timers, cfg.Reminders.NotifiedTimerRetention(), log)

	for _, c := range cadences {
		var job reminders.Job
		switch c.Name {
		case CadenceTimers:
			job = timerJob
		case CadenceHousekeeping:
			job = housekeeping
		default:
			job = digestJob
		}
		if err := e.Scheduler.Register(c, job); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Cadences builds the configured cadences in registration order: the timer poll,
// one daily cadence per digest slot, then housekeeping when scheduled.
func Cadences(rc config.ReminderConfig, loc *time.Location) ([]reminders.Cadence, error) {
	slots, err := rc.DigestSlots()
	if err != nil {
		return nil, err
	}

	cadences := make([]reminders.Cadence, 0, len(slots)+2)
	cadences = append(cadences, reminders.Every(CadenceTimers, rc.TimerPollInterval()))
	for _, slot := range slots {
		cadences = append(cadences, reminders.DailyAt(slot.Name, slot.Hour, slot.Minute, loc))
	}
	if rc.HousekeepingSchedule != "" {
		cadences = append(cadences, reminders.Cadence{
			Name:     CadenceHousekeeping,
			Expr:     rc.HousekeepingSchedule,
			Location: loc,
		})
	}

	for _, c := range cadences {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return cadences, nil
}

func (e *Engine) newSender(cfg *config.Config) (notify.Sender, error) {
	switch cfg.Notifier {
	case config.NotifierSMTP:
		sender, err := notify.NewSMTPSender(SMTPConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to create SMTP sender: %w", err)
		}
		return sender, nil
	case config.NotifierQueue:
		q, err := ConnectQueue(cfg.RabbitMQURL, e.logger)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, q.Close)
		e.checks["queue"] = q.HealthCheck
		return notify.NewQueueSender(q, cfg.Reminders.SendTimeout(), 0), nil
	case config.NotifierLog:
		return notify.NewLogSender(e.logger), nil
	default:
		return nil, fmt.Errorf("unsupported notifier: %q", cfg.Notifier)
	}
}

// TimerClaimTTL outlasts one bounded send with a margin for the commit
func TimerClaimTTL(rc config.ReminderConfig) time.Duration {
	if ttl := rc.SendTimeout() + time.Minute; ttl > reminders.DefaultTimerClaimTTL {
		return ttl
	}
	return reminders.DefaultTimerClaimTTL
}

// SMTPConfig maps the process configuration onto the SMTP transport settings
func SMTPConfig(cfg *config.Config) notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		Timeout:  cfg.Reminders.SendTimeout(),
	}
}

// ConnectQueue dials RabbitMQ, retrying with exponential backoff while the broker starts
func ConnectQueue(amqpURL string, log *zap.Logger) (*queue.RabbitMQQueue, error) {
	const maxRetries = 10
	const initialDelay = 2 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		q, err := queue.NewRabbitMQQueue(amqpURL)
		if err == nil {
			log.Info("connected_to_rabbitmq")
			return q, nil
		}

		lastErr = err
		delay := initialDelay * time.Duration(1<<uint(attempt))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		log.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		time.Sleep(delay)
	}
	return nil, fmt.Errorf("failed to connect to rabbitmq after %d attempts: %w", maxRetries, lastErr)
}

// HealthChecks returns the probes for the stores this engine connected to
func (e *Engine) HealthChecks() map[string]handlers.CheckFunc {
	out := make(map[string]handlers.CheckFunc, len(e.checks))
	for name, check := range e.checks {
		out[name] = check
	}
	return out
}

// Close releases connections in reverse order of opening
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
