package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairdesk-api/middleware"
	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/services"
)

// CreateUserRequest represents the request body for creating an account with a role
type CreateUserRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
	Username string `json:"username"`
}

// SetRoleRequest represents the request body for changing a user's role
type SetRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// SetDisabledRequest blocks or restores sign-in
type SetDisabledRequest struct {
	Disabled *bool `json:"disabled" binding:"required"`
}

type AdminController struct {
	admin *services.UserAdminService
}

func NewAdminController(admin *services.UserAdminService) *AdminController {
	return &AdminController{admin: admin}
}

// CreateUser handles POST /api/v1/admin/users - creates an identity and its profile
func (ac *AdminController) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := ac.admin.CreateAccountWithRole(c.Request.Context(), services.CreateUserInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     models.Role(req.Role),
		Username: req.Username,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusCreated, user)
}

// ListUsers handles GET /api/v1/admin/users?role= - users grouped by role.
// role is "all" (the default) or one role name.
func (ac *AdminController) ListUsers(c *gin.Context) {
	dir, err := ac.admin.ListGroupedByRole(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	selector := c.DefaultQuery("role", services.DirectoryAll)
	users, err := dir.View(selector)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}

	respondData(c, http.StatusOK, gin.H{
		"role":   selector,
		"users":  users,
		"counts": dir.Counts,
		"total":  dir.Total,
		"roles":  dir.Roles(),
	})
}

// SetRole handles PUT /api/v1/admin/users/:id/role
func (ac *AdminController) SetRole(c *gin.Context) {
	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := ac.admin.SetRole(c.Request.Context(), c.Param("id"), models.Role(req.Role))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, user)
}

// SetDisabled handles PUT /api/v1/admin/users/:id/disabled - blocks or restores sign-in
func (ac *AdminController) SetDisabled(c *gin.Context) {
	var req SetDisabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	userID := c.Param("id")
	// an admin locking themselves out leaves nobody to undo it
	if self, err := middleware.GetUserID(c); err == nil && self == userID && *req.Disabled {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "You cannot disable your own account")
		return
	}

	if err := ac.admin.SetDisabled(c.Request.Context(), userID, *req.Disabled); err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"id": userID, "disabled": *req.Disabled})
}
