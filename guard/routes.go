package guard

import "github.com/kendall-kelly/repairdesk-api/models"

// Route is a page path and the roles allowed to open it
type Route struct {
	Path    string
	Title   string
	Allowed []models.Role
}

// Routes lists every gated page
var Routes = []Route{
	{Path: HomePath, Title: "Home", Allowed: models.AllRoles},
	{Path: "/user-dashboard", Title: "User Dashboard", Allowed: []models.Role{models.RoleUser}},
	{Path: "/technician-dashboard", Title: "Technician Dashboard", Allowed: []models.Role{models.RoleTechnician}},
	{Path: "/manager-dashboard", Title: "Manager Dashboard", Allowed: []models.Role{models.RoleManager}},
	{Path: "/engineer-dashboard", Title: "Engineer Dashboard", Allowed: []models.Role{models.RoleEngineer}},
	{Path: "/admin-dashboard", Title: "Admin Dashboard", Allowed: []models.Role{models.RoleAdmin}},
	{Path: "/admin/request-form", Title: "New Request", Allowed: []models.Role{models.RoleAdmin}},
	{Path: "/admin/users-by-role", Title: "Users by Role", Allowed: []models.Role{models.RoleAdmin}},
	{Path: "/admin/all-requests", Title: "All Requests", Allowed: []models.Role{models.RoleAdmin}},
}

// Allow-lists for the request views. Route registration and live streams share them,
// so a stream is re-checked against the same roles that let it open.
var (
	OwnRequestRoles      = models.AllRoles
	AllRequestRoles      = []models.Role{models.RoleManager, models.RoleAdmin}
	AssignedRequestRoles = []models.Role{models.RoleTechnician, models.RoleEngineer}
)

// PublicPaths need no session
var PublicPaths = []string{LoginPath, "/signup"}

// Lookup finds the registered route for path
func Lookup(path string) (Route, bool) {
	for _, r := range Routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// LandingRoute is the page a role is sent to after signing in
func LandingRoute(role models.Role) string {
	switch role {
	case models.RoleAdmin:
		return "/admin-dashboard"
	case models.RoleManager:
		return "/manager-dashboard"
	case models.RoleTechnician:
		return "/technician-dashboard"
	case models.RoleEngineer:
		return "/engineer-dashboard"
	case models.RoleUser:
		return "/user-dashboard"
	default:
		return HomePath
	}
}
