package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/stores"
	"github.com/kendall-kelly/repairdesk-api/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingProfiles struct {
	ProfileRepository
	err error
}

func (f *failingProfiles) Put(ctx context.Context, user *models.User) error {
	return f.err
}

type adminFixture struct {
	identities *stores.IdentityStore
	profiles   *stores.ProfileStore
	service    *UserAdminService
}

func newAdminFixture(t *testing.T) *adminFixture {
	db := testutil.NewTestDB(t)
	cfg := testutil.TestConfig()
	f := &adminFixture{
		identities: stores.NewIdentityStore(db, stores.TokenConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			TTL:      cfg.SessionTTL,
		}),
		profiles: stores.NewProfileStore(db),
	}
	f.service = NewUserAdminService(f.identities, f.profiles)
	return f
}

func TestCreateAccountWithRole(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	user, err := f.service.CreateAccountWithRole(ctx, CreateUserInput{
		Email:    "Tech@Example.com",
		Password: "secret123",
		Role:     "Technician",
		Username: "tess",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "tech@example.com", user.Email)
	assert.Equal(t, models.RoleTechnician, user.Role)
	require.NotNil(t, user.Username)
	assert.Equal(t, "tess", *user.Username)

	stored, err := f.profiles.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTechnician, stored.Role)

	identity, _, err := f.identities.SignIn(ctx, "tech@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, identity.ID, "profile is keyed by the identity id")
}

func TestCreateAccountWithRoleRejectsInput(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateAccountWithRole(ctx, CreateUserInput{Email: "a@example.com", Password: "secret123", Role: "superuser"})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "role", verr.Field)

	_, err = f.service.CreateAccountWithRole(ctx, CreateUserInput{Email: "a@example.com", Password: "123", Role: models.RoleUser})
	assert.ErrorIs(t, err, models.ErrWeakPassword)

	_, err = f.service.CreateAccountWithRole(ctx, CreateUserInput{Email: "not-an-email", Password: "secret123", Role: models.RoleUser})
	assert.ErrorIs(t, err, models.ErrInvalidEmail)

	_, err = f.service.CreateAccountWithRole(ctx, CreateUserInput{Email: "a@example.com", Password: "secret123", Role: models.RoleUser})
	require.NoError(t, err)
	_, err = f.service.CreateAccountWithRole(ctx, CreateUserInput{Email: "A@example.com", Password: "secret123", Role: models.RoleAdmin})
	assert.ErrorIs(t, err, models.ErrDuplicateEmail)

	var authErr *models.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, models.CodeDuplicateEmail, authErr.Code)
}

func TestCreateAccountWithRoleRollsBackIdentity(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	service := NewUserAdminService(f.identities, &failingProfiles{ProfileRepository: f.profiles, err: errors.New("disk full")})

	_, err := service.CreateAccountWithRole(ctx, CreateUserInput{Email: "orphan@example.com", Password: "secret123", Role: models.RoleUser})
	var werr *models.WriteError
	require.ErrorAs(t, err, &werr)

	_, _, err = f.identities.SignIn(ctx, "orphan@example.com", "secret123")
	assert.ErrorIs(t, err, models.ErrUserNotFound, "identity is removed when the profile write fails")

	_, err = f.service.CreateAccountWithRole(ctx, CreateUserInput{Email: "orphan@example.com", Password: "secret123", Role: models.RoleUser})
	assert.NoError(t, err, "the email can be used again")
}

func TestSignUpAlwaysCreatesUserRole(t *testing.T) {
	f := newAdminFixture(t)

	user, err := f.service.SignUp(context.Background(), "new@example.com", "secret123", "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Nil(t, user.Username)
}

func TestSetRole(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	user, err := f.service.SignUp(ctx, "promote@example.com", "secret123", "")
	require.NoError(t, err)

	var announced []stores.IdentityChange
	defer f.identities.OnChange(func(c stores.IdentityChange) { announced = append(announced, c) })()

	updated, err := f.service.SetRole(ctx, user.ID, "MANAGER")
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, updated.Role)
	require.Len(t, announced, 1, "open sessions are told to resolve the role again")
	require.NotNil(t, announced[0].Identity)
	assert.Equal(t, user.ID, announced[0].Identity.ID)

	_, err = f.service.SetRole(ctx, user.ID, "")
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.service.SetRole(ctx, "missing", models.RoleAdmin)
	assert.True(t, models.IsNotFound(err))
}

func TestListGroupedByRole(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	ids := make(map[string]string)
	for i, in := range []CreateUserInput{
		{Email: "u1@example.com", Password: "secret123", Role: models.RoleUser},
		{Email: "u2@example.com", Password: "secret123", Role: models.RoleUser},
		{Email: "t1@example.com", Password: "secret123", Role: models.RoleTechnician},
		{Email: "a1@example.com", Password: "secret123", Role: models.RoleAdmin},
	} {
		user, err := f.service.CreateAccountWithRole(ctx, in)
		require.NoError(t, err)
		// distinct creation times fix the store order
		user.CreatedAt = time.Now().Add(time.Duration(i-10) * time.Minute)
		require.NoError(t, f.profiles.Put(ctx, user))
		ids[in.Email] = user.ID
	}
	require.NoError(t, f.profiles.Put(ctx, &models.User{ID: "legacy", Email: "legacy@example.com", Role: "Manager "}))
	require.NoError(t, f.profiles.Put(ctx, &models.User{ID: "ghost", Email: "ghost@example.com", Role: "wizard"}))

	dir, err := f.service.ListGroupedByRole(ctx)
	require.NoError(t, err)

	assert.Equal(t, 5, dir.Total, "profiles without a valid role are left out")
	assert.Equal(t, 2, dir.Counts[models.RoleUser])
	assert.Equal(t, 1, dir.Counts[models.RoleTechnician])
	assert.Equal(t, 1, dir.Counts[models.RoleManager], "stored roles are normalized")
	assert.Equal(t, 0, dir.Counts[models.RoleEngineer])
	assert.Equal(t, []models.Role{models.RoleAdmin, models.RoleManager, models.RoleTechnician, models.RoleUser}, dir.Roles())

	admins := dir.Groups[models.RoleAdmin]
	require.Len(t, admins, 1)
	assert.Equal(t, ids["a1@example.com"], admins[0].ID)
	for role, users := range dir.Groups {
		if role == models.RoleAdmin {
			continue
		}
		for _, u := range users {
			assert.NotEqual(t, ids["a1@example.com"], u.ID, "admin listed under %s", role)
		}
	}

	all, err := dir.View("ALL")
	require.NoError(t, err)
	emails := make([]string, 0, len(all))
	for _, u := range all {
		emails = append(emails, u.Email)
	}
	assert.Equal(t, []string{"u1@example.com", "u2@example.com", "t1@example.com", "a1@example.com", "legacy@example.com"}, emails,
		"the all view keeps creation order")

	techs, err := dir.View("technician")
	require.NoError(t, err)
	require.Len(t, techs, 1)
	assert.Equal(t, "t1@example.com", techs[0].Email)

	engineers, err := dir.View("engineer")
	require.NoError(t, err)
	assert.Empty(t, engineers)

	_, err = dir.View("wizard")
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSetDisabled(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	user, err := f.service.SignUp(ctx, "blocked@example.com", "secret123", "")
	require.NoError(t, err)

	require.NoError(t, f.service.SetDisabled(ctx, user.ID, true))
	_, _, err = f.identities.SignIn(ctx, "blocked@example.com", "secret123")
	assert.ErrorIs(t, err, models.ErrUserDisabled)

	require.NoError(t, f.service.SetDisabled(ctx, user.ID, false))
	_, _, err = f.identities.SignIn(ctx, "blocked@example.com", "secret123")
	assert.NoError(t, err)

	err = f.service.SetDisabled(ctx, "missing", true)
	assert.True(t, models.IsNotFound(err))
}
