package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/services"
)

type VendorController struct {
	vendors *services.VendorService
}

func NewVendorController(vendors *services.VendorService) *VendorController {
	return &VendorController{vendors: vendors}
}

// List handles GET /api/v1/vendors
func (vc *VendorController) List(c *gin.Context) {
	vendors, err := vc.vendors.List(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if vendors == nil {
		vendors = []models.Vendor{}
	}
	respondData(c, http.StatusOK, vendors)
}

// Get handles GET /api/v1/vendors/:id
func (vc *VendorController) Get(c *gin.Context) {
	vendor, err := vc.vendors.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, vendor)
}

// Create handles POST /api/v1/vendors
func (vc *VendorController) Create(c *gin.Context) {
	var in services.VendorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondBindError(c, err)
		return
	}

	vendor, err := vc.vendors.Create(c.Request.Context(), in)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusCreated, vendor)
}

// Update handles PUT /api/v1/vendors/:id
func (vc *VendorController) Update(c *gin.Context) {
	var in services.VendorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondBindError(c, err)
		return
	}

	vendor, err := vc.vendors.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, vendor)
}

// Delete handles DELETE /api/v1/vendors/:id
func (vc *VendorController) Delete(c *gin.Context) {
	if err := vc.vendors.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"id": c.Param("id"), "deleted": true})
}
