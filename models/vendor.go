package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Vendor is an external repair supplier a request can be routed to
type Vendor struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Contact   string    `gorm:"not null" json:"contact"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Vendor model
func (Vendor) TableName() string {
	return "vendors"
}

func (v *Vendor) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}
