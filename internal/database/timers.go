package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/models"
	"github.com/google/uuid"
)

// TimerRepository handles timer database operations
type TimerRepository struct {
	db *DB
}

// NewTimerRepository creates a new timer repository
func NewTimerRepository(db *DB) *TimerRepository {
	return &TimerRepository{db: db}
}

const timerColumns = `id, user_id, target_time, is_notified, notified_at, claimed_until, created_at`

// Create creates a new pending timer
func (r *TimerRepository) Create(ctx context.Context, timer *models.Timer) error {
	if timer.ID == uuid.Nil {
		timer.ID = uuid.New()
	}
	if timer.CreatedAt.IsZero() {
		timer.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO timers (` + timerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		timer.ID,
		timer.UserID,
		toMillis(timer.TargetTime),
		timer.IsNotified,
		nullMillis(timer.NotifiedAt),
		nullMillis(timer.ClaimedUntil),
		toMillis(timer.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create timer: %w", err)
	}

	return nil
}

// GetByID retrieves a timer by ID
func (r *TimerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Timer, error) {
	query := `
		SELECT ` + timerColumns + `
		FROM timers
		WHERE id = $1
	`

	timer, err := scanTimer(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("timer %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get timer: %w", err)
	}

	return timer, nil
}

// ListDue returns pending timers whose target time is at or before now, oldest first.
// Timers overdue by any amount are included.
func (r *TimerRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Timer, error) {
	query := `
		SELECT ` + timerColumns + `
		FROM timers
		WHERE is_notified = FALSE AND target_time <= $1
		ORDER BY target_time
	`

	rows, err := r.db.QueryContext(ctx, query, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query due timers: %w", err)
	}
	defer closeRows(rows)

	var timers []*models.Timer
	for rows.Next() {
		timer, err := scanTimer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timer: %w", err)
		}
		timers = append(timers, timer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating timers: %w", err)
	}

	return timers, nil
}

// Claim reserves a pending timer for one sender until the given instant. The
// update only matches a pending timer without a live claim, so across processes
// sharing the store at most one caller holds it. A deleted or notified timer
// yields false without an error.
func (r *TimerRepository) Claim(ctx context.Context, id uuid.UUID, now, until time.Time) (bool, error) {
	query := `
		UPDATE timers
		SET claimed_until = $3
		WHERE id = $1 AND is_notified = FALSE
		  AND (claimed_until IS NULL OR claimed_until <= $2)
	`

	result, err := r.db.ExecContext(ctx, query, id, toMillis(now), toMillis(until))
	if err != nil {
		return false, fmt.Errorf("failed to claim timer: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// ReleaseClaim drops a claim taken with the same until value so the next pass
// can retry at once. A claim that expired and was taken over is left alone.
func (r *TimerRepository) ReleaseClaim(ctx context.Context, id uuid.UUID, until time.Time) error {
	query := `
		UPDATE timers
		SET claimed_until = NULL
		WHERE id = $1 AND is_notified = FALSE AND claimed_until = $2
	`

	if _, err := r.db.ExecContext(ctx, query, id, toMillis(until)); err != nil {
		return fmt.Errorf("failed to release timer claim: %w", err)
	}
	return nil
}

// MarkNotified flips a timer from pending to notified. The is_notified = FALSE
// predicate is evaluated at write time, so only one caller can win; the others
// get false without an error.
func (r *TimerRepository) MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE timers
		SET is_notified = TRUE, notified_at = $2, claimed_until = NULL
		WHERE id = $1 AND is_notified = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, id, toMillis(at))
	if err != nil {
		return false, fmt.Errorf("failed to mark timer notified: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// DeleteNotifiedBefore removes notified timers whose notification is older than cutoff.
// Pending timers are never touched.
func (r *TimerRepository) DeleteNotifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM timers
		WHERE is_notified = TRUE AND notified_at IS NOT NULL AND notified_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete notified timers: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func scanTimer(row rowScanner) (*models.Timer, error) {
	timer := &models.Timer{}
	var targetTime, createdAt int64
	var notifiedAt, claimedUntil sql.NullInt64

	if err := row.Scan(
		&timer.ID,
		&timer.UserID,
		&targetTime,
		&timer.IsNotified,
		&notifiedAt,
		&claimedUntil,
		&createdAt,
	); err != nil {
		return nil, err
	}

	timer.TargetTime = fromMillis(targetTime)
	timer.NotifiedAt = timeFromNullMillis(notifiedAt)
	timer.ClaimedUntil = timeFromNullMillis(claimedUntil)
	timer.CreatedAt = fromMillis(createdAt)
	return timer, nil
}
