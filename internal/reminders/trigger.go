package reminders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"github.com/benvon/smart-todo-reminders/internal/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	tracerName  = "github.com/benvon/smart-todo-reminders/internal/reminders"
	maxSleepCap = 60 * time.Second
)

var (
	// ErrUnknownCadence is returned when a cadence name is not registered
	ErrUnknownCadence = errors.New("unknown cadence")
	// ErrCadenceBusy is returned by RunNow while the cadence is already running
	ErrCadenceBusy = errors.New("cadence is already running")
	// ErrSchedulerStarted is returned by Register after Start
	ErrSchedulerStarted = errors.New("scheduler already started")
	// ErrJobPanicked marks a run that was aborted by a panic
	ErrJobPanicked = errors.New("job panicked")
)

// Cadence describes when a job fires: either a 5-field cron expression
// evaluated in Location, or a fixed Interval.
type Cadence struct {
	Name     string
	Expr     string
	Interval time.Duration
	Location *time.Location
}

// DailyAt returns a cron cadence firing once a day at hour:minute in loc
func DailyAt(name string, hour, minute int, loc *time.Location) Cadence {
	return Cadence{
		Name:     name,
		Expr:     fmt.Sprintf("%d %d * * *", minute, hour),
		Location: loc,
	}
}

// Every returns an interval cadence
func Every(name string, interval time.Duration) Cadence {
	return Cadence{Name: name, Interval: interval}
}

// Validate checks that exactly one of Expr and Interval is set and that Expr parses
func (c Cadence) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("cadence name is required")
	}
	switch {
	case c.Expr != "" && c.Interval > 0:
		return fmt.Errorf("cadence %s: expression and interval are mutually exclusive", c.Name)
	case c.Interval > 0:
		return nil
	case c.Expr == "":
		return fmt.Errorf("cadence %s: expression or positive interval is required", c.Name)
	}
	return validation.ValidateCron(c.Expr)
}

// Next returns the first occurrence strictly after after
func (c Cadence) Next(after time.Time) (time.Time, error) {
	if c.Interval > 0 {
		return after.Add(c.Interval), nil
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	next, err := gronx.NextTickAfter(c.Expr, after.In(loc), false)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to compute next occurrence of %s: %w", c.Name, err)
	}
	return next, nil
}

// String describes the cadence for logs and the CLI
func (c Cadence) String() string {
	if c.Interval > 0 {
		return "every " + c.Interval.String()
	}
	loc := "UTC"
	if c.Location != nil {
		loc = c.Location.String()
	}
	return c.Expr + " (" + loc + ")"
}

type entry struct {
	cadence Cadence
	job     Job
	running atomic.Bool

	mu   sync.Mutex
	last *RunResult
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithTracer sets the tracer used for cadence spans
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scheduler) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithSchedulerClock overrides the scheduler's time source
func WithSchedulerClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// Scheduler fires registered jobs on their cadences. Each cadence has its own
// goroutine; a cadence whose previous run has not finished skips the new
// occurrence. Missed occurrences are never replayed.
type Scheduler struct {
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a new scheduler
func NewScheduler(log *zap.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		logger:  log,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job under the given cadence. Names must be unique.
func (s *Scheduler) Register(c Cadence, job Job) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("cadence %s: job is required", c.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrSchedulerStarted
	}
	if _, exists := s.entries[c.Name]; exists {
		return fmt.Errorf("cadence %s is already registered", c.Name)
	}
	s.entries[c.Name] = &entry{cadence: c, job: job}
	s.order = append(s.order, c.Name)
	return nil
}

// Cadences returns the registered cadences in registration order
func (s *Scheduler) Cadences() []Cadence {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Cadence, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name].cadence)
	}
	return out
}

// Start launches one goroutine per cadence. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrSchedulerStarted
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, name := range s.order {
		e := s.entries[name]
		s.wg.Add(1)
		go s.loop(runCtx, e)
		s.logger.Info("cadence_scheduled",
			zap.String("cadence", e.cadence.Name),
			zap.String("schedule", e.cadence.String()),
		)
	}
	return nil
}

// Stop cancels all cadences and waits for in-flight runs to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// RunNow executes the named cadence's job once, synchronously, under the
// same overlap guard as scheduled runs.
func (s *Scheduler) RunNow(ctx context.Context, name string) (RunResult, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return RunResult{}, fmt.Errorf("%w: %s", ErrUnknownCadence, name)
	}

	if !e.running.CompareAndSwap(false, true) {
		return RunResult{}, fmt.Errorf("%w: %s", ErrCadenceBusy, name)
	}
	defer e.running.Store(false)

	return s.execute(ctx, e), nil
}

// LastResults returns the most recent result of every cadence that has run
func (s *Scheduler) LastResults() map[string]RunResult {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make(map[string]RunResult, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.last != nil {
			out[e.cadence.Name] = *e.last
		}
		e.mu.Unlock()
	}
	return out
}

// NextRuns returns the next occurrence of every cadence after from, sorted by time
func (s *Scheduler) NextRuns(from time.Time) []ScheduledRun {
	var runs []ScheduledRun
	for _, c := range s.Cadences() {
		next, err := c.Next(from)
		if err != nil {
			continue
		}
		runs = append(runs, ScheduledRun{Cadence: c.Name, At: next})
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].At.Before(runs[j].At) })
	return runs
}

// ScheduledRun is an upcoming occurrence of a cadence
type ScheduledRun struct {
	Cadence string    `json:"cadence"`
	At      time.Time `json:"at"`
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	next, err := e.cadence.Next(s.now())
	if err != nil {
		s.logger.Error("cadence_schedule_failed", zap.String("cadence", e.cadence.Name), zap.Error(err))
		return
	}

	timer := time.NewTimer(sleepFor(next.Sub(s.now())))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		now := s.now()
		if now.Before(next) {
			timer.Reset(sleepFor(next.Sub(now)))
			continue
		}

		s.fire(ctx, e)

		// compute from the current time so a long pause fires once, not once per missed tick
		next, err = e.cadence.Next(s.now())
		if err != nil {
			s.logger.Error("cadence_schedule_failed", zap.String("cadence", e.cadence.Name), zap.Error(err))
			return
		}
		timer.Reset(sleepFor(next.Sub(s.now())))
	}
}

func sleepFor(d time.Duration) time.Duration {
	if d > maxSleepCap {
		return maxSleepCap
	}
	if d < 0 {
		return 0
	}
	return d
}

func (s *Scheduler) fire(ctx context.Context, e *entry) {
	if !e.running.CompareAndSwap(false, true) {
		s.logger.Warn("cadence_tick_skipped_overlap", zap.String("cadence", e.cadence.Name))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer e.running.Store(false)
		s.execute(ctx, e)
	}()
}

func (s *Scheduler) execute(ctx context.Context, e *entry) RunResult {
	ctx, span := s.tracer.Start(ctx, "cadence."+e.cadence.Name)
	defer span.End()

	started := s.now()
	result := runJob(ctx, e.job)
	result.Cadence = e.cadence.Name
	result.StartedAt = started
	result.FinishedAt = s.now()

	span.SetAttributes(
		attribute.String("cadence.status", string(result.Status())),
		attribute.Int("cadence.sent", result.Sent),
		attribute.Int("cadence.skipped", result.Skipped),
		attribute.Int("cadence.failed", result.Failed),
	)
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
	}

	e.mu.Lock()
	last := result
	e.last = &last
	e.mu.Unlock()

	s.logResult(result)
	return result
}

func runJob(ctx context.Context, job Job) (result RunResult) {
	defer func() {
		if r := recover(); r != nil {
			result = RunResult{Err: fmt.Errorf("%w: %v", ErrJobPanicked, r)}
		}
	}()
	return job.Run(ctx)
}

func (s *Scheduler) logResult(r RunResult) {
	fields := []zap.Field{
		zap.String("cadence", r.Cadence),
		zap.String("status", string(r.Status())),
		zap.Int("sent", r.Sent),
		zap.Int("skipped", r.Skipped),
		zap.Int("failed", r.Failed),
		zap.Duration("duration", r.Duration()),
	}
	if r.Purged > 0 {
		fields = append(fields, zap.Int64("purged", r.Purged))
	}

	switch r.Status() {
	case StatusHardFailure:
		s.logger.Error("cadence_run_failed", append(fields, zap.Error(r.Err))...)
	case StatusPartialFailure:
		items := make([]string, 0, len(r.Failures))
		for _, f := range r.Failures {
			items = append(items, f.Item)
		}
		s.logger.Warn("cadence_run_partial_failure", append(fields, zap.Strings("failed_items", items))...)
	default:
		s.logger.Info("cadence_run_completed", fields...)
	}
}
