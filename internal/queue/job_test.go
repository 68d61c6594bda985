package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewEmailJob(t *testing.T) {
	t.Parallel()

	job := NewEmailJob("alice@example.com", "Timer finished", "<p>done</p>")

	if job.ID == uuid.Nil {
		t.Error("Expected job ID to be set")
	}
	if job.Type != JobTypeSendEmail {
		t.Errorf("Expected job type to be %s, got %s", JobTypeSendEmail, job.Type)
	}
	if job.To != "alice@example.com" || job.Subject != "Timer finished" || job.HTMLBody != "<p>done</p>" {
		t.Errorf("Unexpected envelope: %+v", job)
	}
	if job.RetryCount != 0 {
		t.Errorf("Expected retry count to be 0, got %d", job.RetryCount)
	}
	if job.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected max retries to be %d, got %d", DefaultMaxRetries, job.MaxRetries)
	}
}

func TestJob_IsExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		job  *Job
		want bool
	}{
		{name: "no expiration", job: &Job{}, want: false},
		{name: "expired", job: &Job{NotAfter: &past}, want: true},
		{name: "not yet expired", job: &Job{NotAfter: &future}, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.job.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_Retry(t *testing.T) {
	t.Parallel()

	job := NewEmailJob("a@example.com", "s", "b")
	for i := 0; i < DefaultMaxRetries; i++ {
		if !job.CanRetry() {
			t.Fatalf("Expected retry %d to be allowed", i+1)
		}
		job.IncrementRetry()
	}
	if job.CanRetry() {
		t.Error("Expected retries to be exhausted")
	}
}

func TestJob_JSONShape(t *testing.T) {
	t.Parallel()

	job := NewEmailJob("a@example.com", "subject", "<b>body</b>")
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"id", "type", "to", "subject", "html_body", "created_at", "retry_count", "max_retries"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("Expected key %q in encoded job", key)
		}
	}
	if _, ok := fields["not_after"]; ok {
		t.Error("not_after should be omitted when unset")
	}
}
