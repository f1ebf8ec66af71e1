package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an enrolled participant. The descriptor is what the roster is built from.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	FullName     string    `json:"full_name" db:"full_name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         string    `json:"role" db:"role"`
	AvatarKey    string    `json:"avatar_key" db:"avatar_key"`
	AvatarURL    string    `json:"avatar_url" db:"avatar_url"`
	Descriptor   []float32 `json:"-" db:"face_descriptor"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

const RoleStudent = "mahasiswa"

// RosterEntry converts the user into a validated roster entry.
func (u User) RosterEntry(dim int) (RosterEntry, error) {
	return NewRosterEntry(u.ID.String(), u.FullName, u.Descriptor, u.AvatarURL, dim)
}
