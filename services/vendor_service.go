package services

import (
	"context"
	"strings"

	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/stores"
)

// VendorInput is the editable part of a vendor
type VendorInput struct {
	Name    string `json:"name" validate:"required,max=200"`
	Contact string `json:"contact" validate:"max=200"`
}

type VendorService struct {
	vendors *stores.VendorStore
}

func NewVendorService(vendors *stores.VendorStore) *VendorService {
	return &VendorService{vendors: vendors}
}

func (s *VendorService) validate(in *VendorInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Contact = strings.TrimSpace(in.Contact)
	if err := newValidator().Struct(in); err != nil {
		return toValidationError(err)
	}
	return nil
}

func (s *VendorService) Create(ctx context.Context, in VendorInput) (*models.Vendor, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	v := &models.Vendor{Name: in.Name, Contact: in.Contact}
	if err := s.vendors.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *VendorService) Update(ctx context.Context, id string, in VendorInput) (*models.Vendor, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	return s.vendors.Update(ctx, id, in.Name, in.Contact)
}

func (s *VendorService) List(ctx context.Context) ([]models.Vendor, error) {
	return s.vendors.List(ctx)
}

func (s *VendorService) Get(ctx context.Context, id string) (*models.Vendor, error) {
	return s.vendors.Get(ctx, id)
}

func (s *VendorService) Delete(ctx context.Context, id string) error {
	return s.vendors.Delete(ctx, id)
}
