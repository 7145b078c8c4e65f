package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestStatus is the lifecycle state of a repair request
type RequestStatus string

const (
	StatusPending    RequestStatus = "Pending"
	StatusInProgress RequestStatus = "In Progress"
	StatusCompleted  RequestStatus = "Completed"
	StatusCancelled  RequestStatus = "Cancelled"
)

// AllStatuses lists statuses in lifecycle order
var AllStatuses = []RequestStatus{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}

// ParseStatus matches raw against the known statuses ignoring case
func ParseStatus(raw string) (RequestStatus, bool) {
	for _, s := range AllStatuses {
		if strings.EqualFold(strings.TrimSpace(raw), string(s)) {
			return s, true
		}
	}
	return "", false
}

// RequestPriority is the urgency assigned by an administrator
type RequestPriority string

const (
	PriorityLow    RequestPriority = "Low"
	PriorityMedium RequestPriority = "Medium"
	PriorityHigh   RequestPriority = "High"
	PriorityUrgent RequestPriority = "Urgent"
)

// AllPriorities lists priorities from lowest to highest
var AllPriorities = []RequestPriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// ParsePriority matches raw against the known priorities ignoring case
func ParsePriority(raw string) (RequestPriority, bool) {
	for _, p := range AllPriorities {
		if strings.EqualFold(strings.TrimSpace(raw), string(p)) {
			return p, true
		}
	}
	return "", false
}

// Request represents a repair request submitted by a user
type Request struct {
	ID                 string          `gorm:"primaryKey;size:64" json:"id"`
	UserID             string          `gorm:"not null;index;size:64" json:"user_id"` // owner, never changes
	UserEmail          string          `gorm:"not null" json:"user_email"`
	DeviceType         string          `gorm:"not null" json:"device_type"`
	DeviceID           *string         `json:"device_id,omitempty"`
	ProblemDescription string          `gorm:"type:text;not null" json:"problem_description"`
	Status             RequestStatus   `gorm:"not null;size:32;default:'Pending'" json:"status"`
	Priority           RequestPriority `gorm:"not null;size:32;default:'Low'" json:"priority"`
	AssignedTo         *string         `gorm:"index;size:64" json:"assigned_to"` // identity id of the assignee
	VendorID           *string         `gorm:"index;size:64" json:"vendor_id"`
	AttachmentKey      *string         `json:"attachment_key,omitempty"`
	AttachmentURL      *string         `gorm:"-" json:"attachment_url,omitempty"` // computed on read
	CreatedAt          time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the Request model
func (Request) TableName() string {
	return "requests"
}

// BeforeCreate assigns the record id
func (r *Request) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// IsAssignedTo reports whether the request is assigned to userID
func (r Request) IsAssignedTo(userID string) bool {
	return r.AssignedTo != nil && *r.AssignedTo == userID
}
