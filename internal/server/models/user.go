package models

import "time"

// User is a registered identity. Email is the unique login handle.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
