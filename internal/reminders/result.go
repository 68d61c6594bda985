package reminders

import (
	"context"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/logger"
)

// Status classifies a finished run
type Status string

const (
	// StatusSuccess means every selected item was sent or deliberately skipped
	StatusSuccess Status = "success"
	// StatusPartialFailure means at least one item failed while the rest of the batch ran
	StatusPartialFailure Status = "partial_failure"
	// StatusHardFailure means the run could not select its work or panicked
	StatusHardFailure Status = "hard_failure"
)

// ItemFailure records one recipient whose notification did not go through
type ItemFailure struct {
	Item      string `json:"item"`
	Recipient string `json:"recipient"`
	Error     string `json:"error"`
}

// RunResult is the outcome of one invocation of a cadence's job
type RunResult struct {
	Cadence    string        `json:"cadence"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Sent       int           `json:"sent"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Purged     int64         `json:"purged,omitempty"`
	Failures   []ItemFailure `json:"failures,omitempty"`
	Err        error         `json:"-"`
}

// Status derives the run status from the counters and the run error
func (r RunResult) Status() Status {
	if r.Err != nil {
		return StatusHardFailure
	}
	if r.Failed > 0 || len(r.Failures) > 0 {
		return StatusPartialFailure
	}
	return StatusSuccess
}

// Duration returns how long the run took
func (r RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *RunResult) recordFailure(item, recipient string, err error) {
	r.Failures = append(r.Failures, ItemFailure{
		Item:      item,
		Recipient: recipient,
		Error:     logger.SanitizeError(err),
	})
}

// Job is the unit of work a cadence invokes. Implementations must not
// return early on a single item's failure.
type Job interface {
	Run(ctx context.Context) RunResult
}

// JobFunc adapts a function to the Job interface
type JobFunc func(ctx context.Context) RunResult

// Run calls f(ctx)
func (f JobFunc) Run(ctx context.Context) RunResult {
	return f(ctx)
}
