package models

import (
	"time"
)

// User is the profile record keyed by the identity id.
// The role on this record is the only source of authorization.
type User struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Email     string    `gorm:"index;not null" json:"email"`
	Username  *string   `json:"username,omitempty"`
	Role      Role      `gorm:"size:32" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// DisplayName returns the username when set, otherwise the email
func (u User) DisplayName() string {
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	return u.Email
}
