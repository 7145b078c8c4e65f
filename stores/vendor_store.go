package stores

import (
	"context"
	"errors"

	"github.com/kendall-kelly/repairdesk-api/models"
	"gorm.io/gorm"
)

type VendorStore struct {
	db *gorm.DB
}

func NewVendorStore(db *gorm.DB) *VendorStore {
	return &VendorStore{db: db}
}

func (s *VendorStore) Create(ctx context.Context, v *models.Vendor) error {
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return &models.WriteError{Op: "create vendor", Err: err}
	}
	return nil
}

func (s *VendorStore) Get(ctx context.Context, id string) (*models.Vendor, error) {
	var v models.Vendor
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "vendor", ID: id}
		}
		return nil, &models.ReadError{Op: "get vendor", Err: err}
	}
	return &v, nil
}

func (s *VendorStore) List(ctx context.Context) ([]models.Vendor, error) {
	var vendors []models.Vendor
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&vendors).Error; err != nil {
		return nil, &models.ReadError{Op: "list vendors", Err: err}
	}
	return vendors, nil
}

func (s *VendorStore) Update(ctx context.Context, id, name, contact string) (*models.Vendor, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v.Name = name
	v.Contact = contact
	if err := s.db.WithContext(ctx).Save(v).Error; err != nil {
		return nil, &models.WriteError{Op: "update vendor", Err: err}
	}
	return v, nil
}

// Delete removes a vendor. Deleting an unknown vendor is a no-op.
func (s *VendorStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Vendor{}).Error; err != nil {
		return &models.WriteError{Op: "delete vendor", Err: err}
	}
	return nil
}
