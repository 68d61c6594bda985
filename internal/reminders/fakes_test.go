package reminders

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/benvon/smart-todo-reminders/internal/database"
	"github.com/benvon/smart-todo-reminders/internal/models"
	"github.com/benvon/smart-todo-reminders/internal/notify"
	"github.com/google/uuid"
)

var (
	_ database.UserRepositoryInterface  = (*fakeUsers)(nil)
	_ database.TodoRepositoryInterface  = (*fakeTodos)(nil)
	_ database.TimerRepositoryInterface = (*fakeTimers)(nil)
	_ notify.Sender                     = (*recordingSender)(nil)
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
	err   error
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{users: make(map[uuid.UUID]*models.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[uuid.UUID]*models.User)
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type fakeTodos struct {
	todos []*models.Todo
	err   error
}

func (f *fakeTodos) ListByDateRange(ctx context.Context, start, end time.Time) ([]*models.Todo, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Todo
	for _, t := range f.todos {
		if !t.Date.Before(start) && t.Date.Before(end) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID.String() < out[j].UserID.String()
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func (f *fakeTodos) ListByUserAndDateRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*models.Todo, error) {
	all, err := f.ListByDateRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	var out []*models.Todo
	for _, t := range all {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

// fakeTimers mimics the claim and conditional write of the real repository.
// Several jobs may share one fakeTimers the way processes share a database.
type fakeTimers struct {
	mu     sync.Mutex
	timers map[uuid.UUID]*models.Timer

	listErr   error
	claimErr  error
	markErr   error
	markLost  bool
	staleDue  []*models.Timer
	markCalls int
}

func newFakeTimers(timers ...*models.Timer) *fakeTimers {
	f := &fakeTimers{timers: make(map[uuid.UUID]*models.Timer)}
	for _, t := range timers {
		f.timers[t.ID] = t
	}
	return f
}

func (f *fakeTimers) ListDue(ctx context.Context, now time.Time) ([]*models.Timer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.staleDue != nil {
		return f.staleDue, nil
	}
	var out []*models.Timer
	for _, t := range f.timers {
		if t.IsDue(now) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetTime.Before(out[j].TargetTime) })
	return out, nil
}

func (f *fakeTimers) Claim(ctx context.Context, id uuid.UUID, now, until time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return false, f.claimErr
	}
	t, ok := f.timers[id]
	if !ok || t.IsNotified {
		return false, nil
	}
	if t.ClaimedUntil != nil && t.ClaimedUntil.After(now) {
		return false, nil
	}
	t.ClaimedUntil = &until
	return true, nil
}

func (f *fakeTimers) ReleaseClaim(ctx context.Context, id uuid.UUID, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.timers[id]
	if ok && !t.IsNotified && t.ClaimedUntil != nil && t.ClaimedUntil.Equal(until) {
		t.ClaimedUntil = nil
	}
	return nil
}

func (f *fakeTimers) MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	if f.markErr != nil {
		return false, f.markErr
	}
	if f.markLost {
		return false, nil
	}
	t, ok := f.timers[id]
	if !ok || t.IsNotified {
		return false, nil
	}
	t.IsNotified = true
	t.NotifiedAt = &at
	t.ClaimedUntil = nil
	return true, nil
}

func (f *fakeTimers) exists(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.timers[id]
	return ok
}

func (f *fakeTimers) claimed(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.timers[id]
	return ok && t.ClaimedUntil != nil
}

func (f *fakeTimers) DeleteNotifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, t := range f.timers {
		if t.IsNotified && t.NotifiedAt != nil && t.NotifiedAt.Before(cutoff) {
			delete(f.timers, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeTimers) notified(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.timers[id]
	return ok && t.IsNotified
}

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

// recordingSender records every call; failFor makes sends to listed addresses fail
type recordingSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	calls   atomic.Int32
	failFor map[string]error
	sendFn  func(ctx context.Context, to string) error
}

func (s *recordingSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	s.calls.Add(1)
	if s.sendFn != nil {
		if err := s.sendFn(ctx, to); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[to]; ok {
		return err
	}
	s.sent = append(s.sent, sentMessage{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (s *recordingSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

func newUser(email, name string) *models.User {
	u := &models.User{ID: uuid.New(), Email: email}
	if name != "" {
		u.Name = &name
	}
	return u
}

func newTimer(owner *models.User, target time.Time) *models.Timer {
	return &models.Timer{
		ID:         uuid.New(),
		UserID:     owner.ID,
		TargetTime: target,
		CreatedAt:  target.Add(-time.Hour),
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}
