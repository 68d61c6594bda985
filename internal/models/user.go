package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account that owns todos and timers.
// Users are created by the registration flow; the reminder engine only reads them.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName returns the user's name, falling back to the email address
// and finally to a neutral greeting.
func (u *User) DisplayName() string {
	if u == nil {
		return "there"
	}
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	if u.Email != "" {
		return u.Email
	}
	return "there"
}

// HasEmail reports whether the user can receive notifications.
func (u *User) HasEmail() bool {
	return u != nil && u.Email != ""
}
