package auth

import (
	"errors"
	"time"
)

// User is a registered operator account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

var (
	// ErrDuplicateEmail is returned by Create when the email is taken.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
)

// Repository is the user store capability consumed by the auth routes.
// Implementations must be safe for concurrent use. Emails are stored and
// looked up in normalized (lowercased) form.
type Repository interface {
	FindByEmail(email string) (*User, error)
	FindByID(id string) (*User, error)
	Create(user *User) error
	Close() error
}
