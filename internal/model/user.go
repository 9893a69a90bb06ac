// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Email is the login key — unique, stored exactly as submitted (no case
// folding). PasswordHash is the bcrypt hash of the password; the plaintext
// never leaves the auth service. The json:"-" tag guarantees the hash can
// never leak into an API response even if a handler serializes the whole
// struct.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
