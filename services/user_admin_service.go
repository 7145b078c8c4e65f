package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kendall-kelly/repairdesk-api/logger"
	"github.com/kendall-kelly/repairdesk-api/models"
)

// IdentityManager is the part of the identity store user administration needs
type IdentityManager interface {
	CreateAccount(ctx context.Context, email, password string) (*models.Identity, error)
	DeleteAccount(ctx context.Context, accountID string) error
	SetDisabled(ctx context.Context, accountID string, disabled bool) error
	NotifyProfileChanged(ctx context.Context, accountID string) error
}

// ProfileRepository reads and writes user profiles
type ProfileRepository interface {
	Get(ctx context.Context, id string) (*models.User, error)
	Put(ctx context.Context, user *models.User) error
	List(ctx context.Context) ([]models.User, error)
}

// CreateUserInput describes a new account and its profile
type CreateUserInput struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
	Username string      `json:"username"`
}

// UserAdminService creates accounts and lists users by role
type UserAdminService struct {
	identities IdentityManager
	profiles   ProfileRepository
	validate   *validator.Validate
}

func NewUserAdminService(identities IdentityManager, profiles ProfileRepository) *UserAdminService {
	return &UserAdminService{
		identities: identities,
		profiles:   profiles,
		validate:   newValidator(),
	}
}

// CreateAccountWithRole creates the identity and then its profile.
// If the profile cannot be written the identity is deleted again.
func (s *UserAdminService) CreateAccountWithRole(ctx context.Context, in CreateUserInput) (*models.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	role := models.NormalizeRole(string(in.Role))
	if role == models.RoleNone {
		return nil, &models.ValidationError{Field: "role", Message: "must be one of user, technician, manager, engineer, admin"}
	}
	if err := s.validate.Var(in.Username, "max=64"); err != nil {
		return nil, &models.ValidationError{Field: "username", Message: "must be at most 64 characters"}
	}

	identity, err := s.identities.CreateAccount(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}

	profile := &models.User{
		ID:    identity.ID,
		Email: identity.Email,
		Role:  role,
	}
	if in.Username != "" {
		profile.Username = &in.Username
	}

	if err := s.profiles.Put(ctx, profile); err != nil {
		if delErr := s.identities.DeleteAccount(context.WithoutCancel(ctx), identity.ID); delErr != nil {
			logger.WithError(delErr, "user_admin").WithField("user_id", identity.ID).Error("Orphaned identity left after profile write failure")
		}
		var werr *models.WriteError
		if errors.As(err, &werr) {
			return nil, err
		}
		return nil, &models.WriteError{Op: "write profile", Err: err}
	}

	logger.WithUser(identity.ID).WithField("role", role).Info("User account created")
	return profile, nil
}

// SignUp is self-service registration. New accounts always get the user role.
func (s *UserAdminService) SignUp(ctx context.Context, email, password, username string) (*models.User, error) {
	return s.CreateAccountWithRole(ctx, CreateUserInput{
		Email:    email,
		Password: password,
		Role:     models.RoleUser,
		Username: username,
	})
}

// SetRole changes the role of an existing profile.
// Open sessions of the user resolve the new role right away.
func (s *UserAdminService) SetRole(ctx context.Context, userID string, role models.Role) (*models.User, error) {
	role = models.NormalizeRole(string(role))
	if role == models.RoleNone {
		return nil, &models.ValidationError{Field: "role", Message: "must be one of user, technician, manager, engineer, admin"}
	}

	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile.Role = role
	if err := s.profiles.Put(ctx, profile); err != nil {
		return nil, err
	}

	// the profile is already written, so a failed notification is only logged
	if err := s.identities.NotifyProfileChanged(ctx, userID); err != nil {
		logger.WithError(err, "user_admin").WithField("user_id", userID).Warn("Failed to announce role change")
	}
	logger.WithUser(userID).WithField("role", role).Info("User role changed")
	return profile, nil
}

// SetDisabled blocks or restores sign-in for a user. Disabling ends every open session.
func (s *UserAdminService) SetDisabled(ctx context.Context, userID string, disabled bool) error {
	if err := s.identities.SetDisabled(ctx, userID, disabled); err != nil {
		return err
	}
	logger.WithUser(userID).WithField("disabled", disabled).Info("User sign-in access changed")
	return nil
}

// DirectoryAll selects every role in a UserDirectory
const DirectoryAll = "all"

// UserDirectory is every profile grouped by role.
// Users keeps the store order, creation time first.
type UserDirectory struct {
	Users  []models.User                 `json:"users"`
	Groups map[models.Role][]models.User `json:"groups"`
	Counts map[models.Role]int           `json:"counts"`
	Total  int                           `json:"total"`
}

// Roles returns the roles that have at least one user, sorted by name
func (d *UserDirectory) Roles() []models.Role {
	roles := make([]models.Role, 0, len(d.Groups))
	for r := range d.Groups {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// View returns the users for "all" or for one role
func (d *UserDirectory) View(selector string) ([]models.User, error) {
	if strings.EqualFold(strings.TrimSpace(selector), DirectoryAll) || strings.TrimSpace(selector) == "" {
		return d.Users, nil
	}

	role := models.NormalizeRole(selector)
	if role == models.RoleNone {
		return nil, &models.ValidationError{Field: "role", Message: "is not a known role"}
	}
	return d.Groups[role], nil
}

// ListGroupedByRole reads every profile once and groups it by role.
// Profiles without a valid role are left out.
func (s *UserAdminService) ListGroupedByRole(ctx context.Context) (*UserDirectory, error) {
	users, err := s.profiles.List(ctx)
	if err != nil {
		return nil, err
	}

	dir := &UserDirectory{
		Groups: make(map[models.Role][]models.User),
		Counts: make(map[models.Role]int),
	}
	for _, u := range users {
		role := models.NormalizeRole(string(u.Role))
		if role == models.RoleNone {
			continue
		}
		u.Role = role
		dir.Users = append(dir.Users, u)
		dir.Groups[role] = append(dir.Groups[role], u)
		dir.Counts[role]++
		dir.Total++
	}
	return dir, nil
}
