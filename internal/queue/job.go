package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeSendEmail delivers one composed notification email
	JobTypeSendEmail JobType = "send_email"
)

// DefaultMaxRetries is how many redeliveries a mail job gets before it is dead-lettered
const DefaultMaxRetries = 3

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID  `json:"id"`
	Type       JobType    `json:"type"`
	To         string     `json:"to"`
	Subject    string     `json:"subject"`
	HTMLBody   string     `json:"html_body"`
	NotAfter   *time.Time `json:"not_after,omitempty"` // Latest time to deliver (nil = no expiration)
	CreatedAt  time.Time  `json:"created_at"`
	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
}

// NewEmailJob creates a new send_email job
func NewEmailJob(to, subject, htmlBody string) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       JobTypeSendEmail,
		To:         to,
		Subject:    subject,
		HTMLBody:   htmlBody,
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}

	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}
