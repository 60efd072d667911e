package domain

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	RoleAdmin    = "admin"
	RoleFounder  = "founder"
	RoleInvestor = "investor"
	RoleUser     = "user"
)

// CanMessage реализует capability gate: базовая роль "user" не имеет
// доступа к мессенджеру независимо от участия в тредах.
func (u *User) CanMessage() bool {
	switch u.Role {
	case RoleAdmin, RoleFounder, RoleInvestor:
		return true
	default:
		return false
	}
}
