package models

import (
	"time"

	"github.com/google/uuid"
)

// Todo represents a dated todo item with an ordered list of subtasks
type Todo struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Topic     string    `json:"topic"`
	Subtasks  Subtasks  `json:"subtasks"`
	Date      time.Time `json:"date"`
	Day       string    `json:"day,omitempty"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DoneCount returns how many subtasks are marked done
func (t *Todo) DoneCount() int {
	n := 0
	for _, s := range t.Subtasks {
		if s.Done {
			n++
		}
	}
	return n
}
