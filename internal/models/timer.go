package models

import (
	"time"

	"github.com/google/uuid"
)

// TimerState is the notification state of a Timer
type TimerState string

const (
	// TimerStatePending means the timer has not been notified yet
	TimerStatePending TimerState = "pending"
	// TimerStateNotified is terminal: the expiry email was confirmed sent
	TimerStateNotified TimerState = "notified"
)

// Timer is a countdown owned by a user. IsNotified only ever moves from false to true.
type Timer struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	TargetTime time.Time  `json:"target_time"`
	IsNotified bool       `json:"is_notified"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
	// ClaimedUntil is set while a pass is sending the expiry notice
	ClaimedUntil *time.Time `json:"claimed_until,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// State returns the timer's state machine position
func (t *Timer) State() TimerState {
	if t.IsNotified {
		return TimerStateNotified
	}
	return TimerStatePending
}

// IsDue reports whether the timer is pending and its target time has been reached
func (t *Timer) IsDue(now time.Time) bool {
	return !t.IsNotified && !t.TargetTime.After(now)
}
