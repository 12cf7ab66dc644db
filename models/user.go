package models

import (
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type User struct {
	ID           uint64    `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"type:varchar(150);uniqueIndex:uniq_user_email;not null" json:"email"`
	PasswordHash *string   `gorm:"type:varchar(128)" json:"-"`
	Name         string    `gorm:"type:varchar(100);not null" json:"name"`
	Role         Role      `gorm:"type:varchar(10);not null;default:user" json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	// Login link state, both NULL when no link is outstanding
	VerificationToken       *string    `gorm:"type:varchar(64)" json:"-"`
	VerificationTokenExpiry *time.Time `json:"-"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Public is the user representation returned to clients
type Public struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

func (u *User) Public() Public {
	return Public{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
