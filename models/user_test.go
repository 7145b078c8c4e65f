package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserTableName(t *testing.T) {
	user := User{}
	assert.Equal(t, "users", user.TableName(), "Table name should be 'users'")
}

func TestUserDisplayName(t *testing.T) {
	name := "jdoe"
	empty := ""

	assert.Equal(t, "jdoe", User{Email: "j@example.com", Username: &name}.DisplayName())
	assert.Equal(t, "j@example.com", User{Email: "j@example.com", Username: &empty}.DisplayName())
	assert.Equal(t, "j@example.com", User{Email: "j@example.com"}.DisplayName())
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Role
	}{
		{"lower case", "admin", RoleAdmin},
		{"title case", "Technician", RoleTechnician},
		{"upper case with spaces", "  MANAGER ", RoleManager},
		{"engineer", "Engineer", RoleEngineer},
		{"user", "User", RoleUser},
		{"empty", "", RoleNone},
		{"unknown", "superuser", RoleNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeRole(tt.raw))
		})
	}
}

func TestRoleHelpers(t *testing.T) {
	assert.True(t, RoleAdmin.IsStaff())
	assert.True(t, RoleEngineer.IsStaff())
	assert.False(t, RoleUser.IsStaff())
	assert.False(t, RoleNone.IsStaff())

	assert.True(t, RoleUser.In(RoleUser, RoleAdmin))
	assert.False(t, RoleNone.In(AllRoles...))
	assert.False(t, RoleNone.Valid())
	assert.Equal(t, "none", RoleNone.String())
	assert.Equal(t, "manager", RoleManager.String())
}

func TestParseStatusAndPriority(t *testing.T) {
	s, ok := ParseStatus("in progress")
	assert.True(t, ok)
	assert.Equal(t, StatusInProgress, s)

	_, ok = ParseStatus("Done")
	assert.False(t, ok)

	p, ok := ParsePriority("URGENT")
	assert.True(t, ok)
	assert.Equal(t, PriorityUrgent, p)

	_, ok = ParsePriority("All")
	assert.False(t, ok)
}

func TestRequestIsAssignedTo(t *testing.T) {
	tech := "tech-1"
	r := Request{AssignedTo: &tech}

	assert.True(t, r.IsAssignedTo("tech-1"))
	assert.False(t, r.IsAssignedTo("tech-2"))
	assert.False(t, Request{}.IsAssignedTo("tech-1"))
}

func TestAuthErrorMatchesByCode(t *testing.T) {
	err := fmt.Errorf("create account: %w", &AuthError{Code: CodeDuplicateEmail, Message: "custom"})

	assert.True(t, errors.Is(err, ErrDuplicateEmail))
	assert.False(t, errors.Is(err, ErrWeakPassword))
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("disk full")
	werr := &WriteError{Op: "create request", Err: cause}

	assert.ErrorIs(t, werr, cause)
	assert.Contains(t, werr.Error(), "create request")
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", &NotFoundError{Resource: "request", ID: "x"})))
	assert.False(t, IsNotFound(cause))
}
