package model

import "time"

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	IsAdmin   bool      `json:"is_admin,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RegisteredUser is the local account record used by login lookups.
// PasswordHash holds a bcrypt hash, never the clear password.
type RegisteredUser struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	Whatsapp     string `json:"whatsapp"`
	Age          int    `json:"age"`
	Gender       string `json:"gender"`
}

type UserPatch struct {
	Name   *string `json:"name"`
	Email  *string `json:"email"`
	Avatar *string `json:"avatar"`
}
