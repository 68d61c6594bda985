package reminders

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benvon/smart-todo-reminders/internal/dedup"
	"github.com/benvon/smart-todo-reminders/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockMarker struct {
	mu       sync.Mutex
	keys     map[string]bool
	seenFunc func(ctx context.Context, key string) (bool, error)
}

var _ dedup.Marker = (*mockMarker)(nil)

func (m *mockMarker) Seen(ctx context.Context, key string) (bool, error) {
	if m.seenFunc != nil {
		return m.seenFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *mockMarker) Mark(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	m.keys[key] = true
	return nil
}

func newTodo(owner *models.User, topic string, date time.Time, subtasks ...models.Subtask) *models.Todo {
	return &models.Todo{
		ID:       uuid.New(),
		UserID:   owner.ID,
		Topic:    topic,
		Subtasks: subtasks,
		Date:     date,
	}
}

func newTestDigestJob(todos *fakeTodos, users *fakeUsers, sender *recordingSender, loc *time.Location, now time.Time, log *zap.Logger, opts ...JobOption) *DigestJob {
	if log == nil {
		log = zap.NewNop()
	}
	opts = append([]JobOption{WithClock(fixedClock(now))}, opts...)
	return NewDigestJob(
		NewDigestSelector(todos, users, loc),
		NewComposer(loc),
		NewDispatcher(sender, log, time.Second),
		log,
		opts...,
	)
}

func TestDigestJob_NoTodosNoSends(t *testing.T) {
	t.Parallel()

	loc := mustLoadLocation("Asia/Karachi")
	now := time.Date(2024, 3, 11, 10, 0, 0, 0, loc)
	alice := newUser("alice@example.com", "")
	// only yesterday's and tomorrow's todos exist
	todos := &fakeTodos{todos: []*models.Todo{
		newTodo(alice, "yesterday", now.AddDate(0, 0, -1)),
		newTodo(alice, "tomorrow", now.AddDate(0, 0, 1)),
	}}
	sender := &recordingSender{}

	result := newTestDigestJob(todos, newFakeUsers(alice), sender, loc, now, nil).Run(context.Background())

	if result.Status() != StatusSuccess {
		t.Fatalf("Status() = %s, want %s", result.Status(), StatusSuccess)
	}
	if got := sender.calls.Load(); got != 0 {
		t.Errorf("send calls = %d, want 0", got)
	}
}

func TestDigestJob_OneMessagePerUser(t *testing.T) {
	t.Parallel()

	loc := mustLoadLocation("Asia/Karachi")
	now := time.Date(2024, 3, 11, 10, 0, 0, 0, loc)
	alice := newUser("alice@example.com", "Alice")
	bob := newUser("bob@example.com", "")
	todos := &fakeTodos{todos: []*models.Todo{
		newTodo(alice, "Groceries", now.Add(2*time.Hour), models.Subtask{Title: "milk", Done: true}, models.Subtask{Title: "eggs"}),
		newTodo(alice, "Gym", now.Add(8*time.Hour)),
		newTodo(bob, "Taxes", now.Add(-time.Hour)),
	}}
	sender := &recordingSender{}

	result := newTestDigestJob(todos, newFakeUsers(alice, bob), sender, loc, now, nil).Run(context.Background())

	if result.Sent != 2 {
		t.Fatalf("Sent = %d, want 2", result.Sent)
	}
	byRecipient := make(map[string]sentMessage)
	for _, m := range sender.messages() {
		byRecipient[m.To] = m
	}
	aliceMsg, ok := byRecipient["alice@example.com"]
	if !ok {
		t.Fatal("alice received no digest")
	}
	if aliceMsg.Subject != "Todo Reminder (10:00 PKT)" {
		t.Errorf("subject = %q, want %q", aliceMsg.Subject, "Todo Reminder (10:00 PKT)")
	}
	for _, want := range []string{"Groceries", "Gym", "✔ milk", "✘ eggs", "Alice"} {
		if !strings.Contains(aliceMsg.Body, want) {
			t.Errorf("alice body missing %q", want)
		}
	}
	if strings.Contains(byRecipient["bob@example.com"].Body, "Groceries") {
		t.Error("bob's digest contains alice's todo")
	}
}

func TestDigestJob_WindowUsesReferenceTimezone(t *testing.T) {
	t.Parallel()

	loc := mustLoadLocation("Asia/Karachi")
	alice := newUser("alice@example.com", "")
	// 23:30 UTC on March 10 is 04:30 on March 11 in Karachi
	todo := newTodo(alice, "Early standup", time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC))
	todos := &fakeTodos{todos: []*models.Todo{todo}}

	tests := []struct {
		name     string
		now      time.Time
		wantSent int
	}{
		{
			name:     "local day of the todo",
			now:      time.Date(2024, 3, 11, 10, 0, 0, 0, loc),
			wantSent: 1,
		},
		{
			name:     "same UTC day but previous local day",
			now:      time.Date(2024, 3, 10, 17, 0, 0, 0, loc),
			wantSent: 0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sender := &recordingSender{}
			result := newTestDigestJob(todos, newFakeUsers(alice), sender, loc, tt.now, nil).Run(context.Background())
			if result.Sent != tt.wantSent {
				t.Errorf("Sent = %d, want %d", result.Sent, tt.wantSent)
			}
		})
	}
}

func TestDigestJob_FailureIsolatedAndLogged(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	now := time.Date(2024, 3, 11, 17, 0, 0, 0, loc)
	users := []*models.User{
		newUser("a@example.com", ""),
		newUser("b@example.com", ""),
		newUser("c@example.com", ""),
	}
	var list []*models.Todo
	for _, u := range users {
		list = append(list, newTodo(u, "work", now))
	}

	core, logs := observer.New(zapcore.InfoLevel)
	sender := &recordingSender{failFor: map[string]error{"b@example.com": errors.New("550 rejected")}}

	result := newTestDigestJob(&fakeTodos{todos: list}, newFakeUsers(users...), sender, loc, now, zap.New(core)).Run(context.Background())

	if result.Sent != 2 || result.Failed != 1 {
		t.Fatalf("Sent=%d Failed=%d, want 2 and 1", result.Sent, result.Failed)
	}
	if result.Status() != StatusPartialFailure {
		t.Errorf("Status() = %s, want %s", result.Status(), StatusPartialFailure)
	}

	failures := logs.FilterMessage("notification_send_failed").All()
	if len(failures) != 1 {
		t.Fatalf("logged %d send failures, want 1", len(failures))
	}
	fields := failures[0].ContextMap()
	if fields["recipient"] != "b****@example.com" {
		t.Errorf("logged recipient = %v, want masked address", fields["recipient"])
	}
	if fields["item"] != "digest:"+users[1].ID.String() {
		t.Errorf("logged item = %v, want digest of second user", fields["item"])
	}
}

func TestDigestJob_SkipsUsersWithoutEmail(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC)
	nameless := newUser("", "No Mail")
	todos := &fakeTodos{todos: []*models.Todo{newTodo(nameless, "x", now)}}

	core, logs := observer.New(zapcore.WarnLevel)
	sender := &recordingSender{}

	result := newTestDigestJob(todos, newFakeUsers(nameless), sender, time.UTC, now, zap.New(core)).Run(context.Background())

	if result.Skipped != 1 || result.Sent != 0 {
		t.Fatalf("Skipped=%d Sent=%d, want 1 and 0", result.Skipped, result.Sent)
	}
	if logs.FilterMessage("digest_recipient_skipped").Len() != 1 {
		t.Error("expected a warning for the skipped recipient")
	}
}

func TestDigestJob_StoreFailureIsHardFailure(t *testing.T) {
	t.Parallel()

	todos := &fakeTodos{err: errors.New("relation \"todos\" does not exist")}
	sender := &recordingSender{}

	result := newTestDigestJob(todos, newFakeUsers(), sender, time.UTC, time.Now(), nil).Run(context.Background())

	if result.Status() != StatusHardFailure {
		t.Fatalf("Status() = %s, want %s", result.Status(), StatusHardFailure)
	}
}

func TestDigestJob_Dedup(t *testing.T) {
	t.Parallel()

	loc := mustLoadLocation("Asia/Karachi")
	alice := newUser("alice@example.com", "")
	morning := time.Date(2024, 3, 11, 10, 0, 0, 0, loc)
	evening := time.Date(2024, 3, 11, 17, 0, 0, 0, loc)
	todos := &fakeTodos{todos: []*models.Todo{newTodo(alice, "x", morning)}}
	users := newFakeUsers(alice)

	t.Run("marker suppresses the second digest of the day", func(t *testing.T) {
		t.Parallel()
		marker := &mockMarker{}
		sender := &recordingSender{}

		first := newTestDigestJob(todos, users, sender, loc, morning, nil, WithDigestMarker(marker, 0)).Run(context.Background())
		second := newTestDigestJob(todos, users, sender, loc, evening, nil, WithDigestMarker(marker, 0)).Run(context.Background())

		if first.Sent != 1 || second.Sent != 0 || second.Skipped != 1 {
			t.Errorf("first=%+v second=%+v, want one send then one skip", first, second)
		}
	})

	t.Run("without marker both slots send", func(t *testing.T) {
		t.Parallel()
		sender := &recordingSender{}

		newTestDigestJob(todos, users, sender, loc, morning, nil).Run(context.Background())
		newTestDigestJob(todos, users, sender, loc, evening, nil).Run(context.Background())

		if got := sender.calls.Load(); got != 2 {
			t.Errorf("send calls = %d, want 2", got)
		}
	})

	t.Run("marker errors fall back to sending", func(t *testing.T) {
		t.Parallel()
		marker := &mockMarker{seenFunc: func(ctx context.Context, key string) (bool, error) {
			return false, errors.New("redis: connection refused")
		}}
		sender := &recordingSender{}

		result := newTestDigestJob(todos, users, sender, loc, morning, nil, WithDigestMarker(marker, 0)).Run(context.Background())
		if result.Sent != 1 {
			t.Errorf("Sent = %d, want 1", result.Sent)
		}
	})
}
