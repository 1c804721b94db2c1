// Package models contains the server-side data model.
package models

import "time"

// User is a registered account. HashedPassword never leaves the
// service/repository boundary.
type User struct {
	Username       string     `json:"username"`
	HashedPassword string     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLoginAt    *time.Time `json:"last_login_at"`
}

// PublicUser is the outward-facing projection of a User.
type PublicUser struct {
	Username    string     `json:"username"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
}

// Public strips the credential material from a User.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		Username:    u.Username,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}
