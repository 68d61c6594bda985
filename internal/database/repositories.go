package database

import (
	"context"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/models"
	"github.com/google/uuid"
)

// UserRepositoryInterface defines the user reads the reminder engine needs
// This interface enables better testability by allowing mock implementations
type UserRepositoryInterface interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.User, error)
}

// TodoRepositoryInterface defines the todo range queries used by the digest
type TodoRepositoryInterface interface {
	ListByDateRange(ctx context.Context, start, end time.Time) ([]*models.Todo, error)
	ListByUserAndDateRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*models.Todo, error)
}

// TimerRepositoryInterface defines the timer queries and the conditional writes
// used by the expiry scheduler
type TimerRepositoryInterface interface {
	ListDue(ctx context.Context, now time.Time) ([]*models.Timer, error)
	Claim(ctx context.Context, id uuid.UUID, now, until time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, id uuid.UUID, until time.Time) error
	MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	DeleteNotifiedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Ensure concrete types implement the interfaces
var (
	_ UserRepositoryInterface  = (*UserRepository)(nil)
	_ TodoRepositoryInterface  = (*TodoRepository)(nil)
	_ TimerRepositoryInterface = (*TimerRepository)(nil)
)
