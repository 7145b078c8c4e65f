package stores

import (
	"context"
	"errors"
	"time"

	"github.com/kendall-kelly/repairdesk-api/logger"
	"github.com/kendall-kelly/repairdesk-api/models"
	"gorm.io/gorm"
)

// Change event types published after each write
const (
	EventRequestCreated = "request.created"
	EventRequestUpdated = "request.updated"
	EventRequestDeleted = "request.deleted"
)

// ChangePublisher forwards request changes to other instances
type ChangePublisher interface {
	PublishRequestChanged(ctx context.Context, eventType, requestID string) error
}

// RequestStore persists repair requests and notifies live subscribers of every change
type RequestStore struct {
	db        *gorm.DB
	hub       *Hub
	publisher ChangePublisher
}

// NewRequestStore creates a store backed by db
func NewRequestStore(db *gorm.DB) *RequestStore {
	s := &RequestStore{db: db}
	s.hub = newHub(s.List)
	return s
}

// SetPublisher attaches a cross-instance change publisher
func (s *RequestStore) SetPublisher(p ChangePublisher) {
	s.publisher = p
}

// Hub returns the subscription hub for this store
func (s *RequestStore) Hub() *Hub {
	return s.hub
}

// Create inserts a new request. The store assigns the id.
func (s *RequestStore) Create(ctx context.Context, req *models.Request) error {
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return &models.WriteError{Op: "create request", Err: err}
	}
	s.changed(ctx, EventRequestCreated, req.ID)
	return nil
}

// Get returns the request with id
func (s *RequestStore) Get(ctx context.Context, id string) (*models.Request, error) {
	var req models.Request
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "request", ID: id}
		}
		return nil, &models.ReadError{Op: "get request", Err: err}
	}
	return &req, nil
}

// Update merges fields into the request with id. Last writer wins.
func (s *RequestStore) Update(ctx context.Context, id string, fields map[string]interface{}) (*models.Request, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	if len(fields) > 0 {
		fields["updated_at"] = time.Now()
		if err := s.db.WithContext(ctx).Model(&models.Request{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return nil, &models.WriteError{Op: "update request", Err: err}
		}
		s.changed(ctx, EventRequestUpdated, id)
	}

	return s.Get(ctx, id)
}

// Delete removes the request permanently and returns what was removed.
// Deleting an unknown id is a no-op and returns nil.
func (s *RequestStore) Delete(ctx context.Context, id string) (*models.Request, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Request{}).Error; err != nil {
		return nil, &models.WriteError{Op: "delete request", Err: err}
	}
	s.changed(ctx, EventRequestDeleted, id)
	return existing, nil
}

// List returns all requests matching p, newest first
func (s *RequestStore) List(ctx context.Context, p Predicate) ([]models.Request, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if !p.IsAll() {
		query = query.Where(p.Field+" = ?", p.Value)
	}

	var requests []models.Request
	if err := query.Find(&requests).Error; err != nil {
		return nil, &models.ReadError{Op: "list requests", Err: err}
	}
	return requests, nil
}

// Subscribe streams full snapshots of requests matching p until ctx ends
func (s *RequestStore) Subscribe(ctx context.Context, p Predicate) (*Subscription, error) {
	return s.hub.Subscribe(ctx, p)
}

func (s *RequestStore) changed(ctx context.Context, eventType, id string) {
	s.hub.Notify(context.WithoutCancel(ctx))

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRequestChanged(ctx, eventType, id); err != nil {
		logger.WithError(err, "request_store").WithField("request_id", id).Warn("Failed to publish request change")
	}
}
