package stores

import (
	"context"
	"errors"
	"strings"

	"github.com/kendall-kelly/repairdesk-api/models"
	"gorm.io/gorm"
)

// ProfileStore persists user profiles keyed by identity id
type ProfileStore struct {
	db *gorm.DB
}

func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// Get returns the profile for id with its role normalized
func (s *ProfileStore) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "profile", ID: id}
		}
		return nil, &models.ReadError{Op: "get profile", Err: err}
	}
	user.Role = models.NormalizeRole(string(user.Role))
	return &user, nil
}

// FindByEmail returns the profile whose email matches, ignoring case
func (s *ProfileStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	if err := s.db.WithContext(ctx).Where("LOWER(email) = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "profile", ID: email}
		}
		return nil, &models.ReadError{Op: "find profile", Err: err}
	}
	user.Role = models.NormalizeRole(string(user.Role))
	return &user, nil
}

// Put creates or replaces the profile
func (s *ProfileStore) Put(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return &models.WriteError{Op: "write profile", Err: err}
	}
	return nil
}

// List returns every profile ordered by creation time, roles normalized
func (s *ProfileStore) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("created_at ASC").Order("email ASC").Find(&users).Error; err != nil {
		return nil, &models.ReadError{Op: "list profiles", Err: err}
	}
	for i := range users {
		users[i].Role = models.NormalizeRole(string(users[i].Role))
	}
	return users, nil
}

// Delete removes a profile. Missing profiles are ignored.
func (s *ProfileStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.User{}).Error; err != nil {
		return &models.WriteError{Op: "delete profile", Err: err}
	}
	return nil
}
