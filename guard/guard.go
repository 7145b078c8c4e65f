package guard

import (
	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/session"
)

// Decision is the outcome of evaluating a route against the current session
type Decision int

const (
	Allow Decision = iota
	// Loading means the session is unresolved; render nothing and do not redirect
	Loading
	RedirectLogin
	RedirectHome
	// Deny refuses the route without redirecting, used when the redirect would loop
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Loading:
		return "loading"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	default:
		return "deny"
	}
}

const (
	LoginPath = "/login"
	HomePath  = "/"
)

// Decide evaluates a role allow-list against the session state
func Decide(state session.State, allowed []models.Role) Decision {
	switch {
	case state.Status == session.StatusUnknown:
		return Loading
	case !state.SignedIn():
		return RedirectLogin
	case !state.Role.Valid() || !state.Role.In(allowed...):
		return RedirectHome
	default:
		return Allow
	}
}

// DecideRoute evaluates a registered route. Redirecting home from the home route
// itself would loop, so that case is denied instead.
func DecideRoute(state session.State, route Route) Decision {
	d := Decide(state, route.Allowed)
	if d == RedirectHome && route.Path == HomePath {
		return Deny
	}
	return d
}

// RedirectTarget returns where a decision sends the client, or "" when it does not redirect
func RedirectTarget(d Decision) string {
	switch d {
	case RedirectLogin:
		return LoginPath
	case RedirectHome:
		return HomePath
	}
	return ""
}
