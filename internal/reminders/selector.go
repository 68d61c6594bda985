package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/database"
	"github.com/benvon/smart-todo-reminders/internal/models"
	"github.com/google/uuid"
)

// Skip reasons reported by the selectors
const (
	SkipReasonNoEmail      = "no_email"
	SkipReasonUnknownOwner = "unknown_owner"
)

// DayWindow returns the half-open interval [start, end) covering the calendar
// day of now in loc. end is start plus one calendar day, so DST transition
// days are 23 or 25 hours long.
func DayWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// SkippedRecipient is a user that had due work but could not be notified
type SkippedRecipient struct {
	UserID uuid.UUID
	Item   string
	Reason string
}

// DigestBatch is one user's todos for the current day window
type DigestBatch struct {
	User  *models.User
	Todos []*models.Todo
}

// DigestSelection is the outcome of a digest selection pass
type DigestSelection struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Batches     []DigestBatch
	Skipped     []SkippedRecipient
}

// DigestSelector groups today's todos by owning user
type DigestSelector struct {
	todos database.TodoRepositoryInterface
	users database.UserRepositoryInterface
	loc   *time.Location
}

// NewDigestSelector creates a new digest selector evaluating days in loc
func NewDigestSelector(todos database.TodoRepositoryInterface, users database.UserRepositoryInterface, loc *time.Location) *DigestSelector {
	if loc == nil {
		loc = time.UTC
	}
	return &DigestSelector{todos: todos, users: users, loc: loc}
}

// Location returns the reference timezone
func (s *DigestSelector) Location() *time.Location {
	return s.loc
}

// Select returns one batch per user with at least one todo dated inside
// today's window. Users without todos produce no batch.
func (s *DigestSelector) Select(ctx context.Context, now time.Time) (*DigestSelection, error) {
	start, end := DayWindow(now, s.loc)

	todos, err := s.todos.ListByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos for digest: %w", err)
	}

	return s.group(ctx, start, end, todos)
}

// SelectUser is Select restricted to one user's todos
func (s *DigestSelector) SelectUser(ctx context.Context, now time.Time, userID uuid.UUID) (*DigestSelection, error) {
	start, end := DayWindow(now, s.loc)

	todos, err := s.todos.ListByUserAndDateRange(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos for user %s: %w", userID, err)
	}

	return s.group(ctx, start, end, todos)
}

func (s *DigestSelector) group(ctx context.Context, start, end time.Time, todos []*models.Todo) (*DigestSelection, error) {
	selection := &DigestSelection{WindowStart: start, WindowEnd: end}
	if len(todos) == 0 {
		return selection, nil
	}

	grouped := make(map[uuid.UUID][]*models.Todo)
	var order []uuid.UUID
	for _, todo := range todos {
		if _, ok := grouped[todo.UserID]; !ok {
			order = append(order, todo.UserID)
		}
		grouped[todo.UserID] = append(grouped[todo.UserID], todo)
	}

	users, err := s.users.GetByIDs(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to load digest recipients: %w", err)
	}

	for _, userID := range order {
		item := "digest:" + userID.String()
		user, ok := users[userID]
		if !ok {
			selection.Skipped = append(selection.Skipped, SkippedRecipient{UserID: userID, Item: item, Reason: SkipReasonUnknownOwner})
			continue
		}
		if !user.HasEmail() {
			selection.Skipped = append(selection.Skipped, SkippedRecipient{UserID: userID, Item: item, Reason: SkipReasonNoEmail})
			continue
		}
		selection.Batches = append(selection.Batches, DigestBatch{User: user, Todos: grouped[userID]})
	}

	return selection, nil
}

// DueTimer is a pending timer whose target time has passed, with its owner
type DueTimer struct {
	Timer *models.Timer
	User  *models.User
}

// TimerSelection is the outcome of a timer selection pass
type TimerSelection struct {
	Due     []DueTimer
	Skipped []SkippedRecipient
}

// TimerSelector finds pending timers whose target time has been reached
type TimerSelector struct {
	timers database.TimerRepositoryInterface
	users  database.UserRepositoryInterface
}

// NewTimerSelector creates a new timer selector
func NewTimerSelector(timers database.TimerRepositoryInterface, users database.UserRepositoryInterface) *TimerSelector {
	return &TimerSelector{timers: timers, users: users}
}

// Select returns every timer with is_notified = false and target_time <= now.
// Timers overdue by more than one tick are included; there is no upper bound.
func (s *TimerSelector) Select(ctx context.Context, now time.Time) (*TimerSelection, error) {
	timers, err := s.timers.ListDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due timers: %w", err)
	}

	selection := &TimerSelection{}
	pending := make([]*models.Timer, 0, len(timers))
	for _, timer := range timers {
		if timer.IsDue(now) {
			pending = append(pending, timer)
		}
	}
	timers = pending
	if len(timers) == 0 {
		return selection, nil
	}

	ids := make([]uuid.UUID, 0, len(timers))
	seen := make(map[uuid.UUID]struct{}, len(timers))
	for _, timer := range timers {
		if _, ok := seen[timer.UserID]; ok {
			continue
		}
		seen[timer.UserID] = struct{}{}
		ids = append(ids, timer.UserID)
	}

	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load timer owners: %w", err)
	}

	for _, timer := range timers {
		item := "timer:" + timer.ID.String()
		user, ok := users[timer.UserID]
		if !ok {
			selection.Skipped = append(selection.Skipped, SkippedRecipient{UserID: timer.UserID, Item: item, Reason: SkipReasonUnknownOwner})
			continue
		}
		if !user.HasEmail() {
			selection.Skipped = append(selection.Skipped, SkippedRecipient{UserID: timer.UserID, Item: item, Reason: SkipReasonNoEmail})
			continue
		}
		selection.Due = append(selection.Due, DueTimer{Timer: timer, User: user})
	}

	return selection, nil
}
