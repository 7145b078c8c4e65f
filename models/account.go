package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account is an email/password credential owned by the identity store
type Account struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Disabled     bool      `gorm:"not null;default:false" json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Account model
func (Account) TableName() string {
	return "accounts"
}

// BeforeCreate assigns a UUID when the caller did not provide one
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Session is one signed-in token. Its ID is carried as the token jti.
type Session struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	AccountID string    `gorm:"index;not null;size:64" json:"account_id"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for the Session model
func (Session) TableName() string {
	return "sessions"
}

// Expired reports whether the session is no longer usable at now
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Identity is the authenticated principal
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
