package models

import "strings"

// Role is the access role stored on a user profile.
// Roles are stored lower-case; anything else is normalized on read.
type Role string

const (
	RoleNone       Role = ""
	RoleUser       Role = "user"
	RoleTechnician Role = "technician"
	RoleManager    Role = "manager"
	RoleEngineer   Role = "engineer"
	RoleAdmin      Role = "admin"
)

// AllRoles lists every assignable role in display order
var AllRoles = []Role{RoleUser, RoleTechnician, RoleManager, RoleEngineer, RoleAdmin}

// StaffRoles may view any repair request
var StaffRoles = []Role{RoleTechnician, RoleManager, RoleEngineer, RoleAdmin}

// NormalizeRole folds case and whitespace. Unknown values become RoleNone.
func NormalizeRole(raw string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if r.Valid() {
		return r
	}
	return RoleNone
}

// Valid reports whether r is one of the assignable roles
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleTechnician, RoleManager, RoleEngineer, RoleAdmin:
		return true
	}
	return false
}

// In reports whether r is contained in roles
func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

// IsStaff reports whether r may view every repair request
func (r Role) IsStaff() bool {
	return r.In(StaffRoles...)
}

func (r Role) String() string {
	if r == RoleNone {
		return "none"
	}
	return string(r)
}
