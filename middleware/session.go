package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairdesk-api/guard"
	"github.com/kendall-kelly/repairdesk-api/logger"
	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/session"
)

// SessionVerifier checks that a token's session is still open
type SessionVerifier interface {
	VerifySession(ctx context.Context, sessionID, accountID string) (*models.Identity, error)
}

// ResolveSession turns validated claims into a session context holding the identity and its role.
// Requests without claims, or whose session was closed, resolve as signed out.
func ResolveSession(sessions SessionVerifier, profiles session.ProfileReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc := session.New(profiles)
		defer sc.Close()

		identity := verifiedIdentity(c, sessions)
		sc.HandleIdentityChange(c.Request.Context(), identity)
		if identity != nil {
			c.Set(userIDKey, identity.ID)
		}

		c.Set(session.GinKey, sc)
		c.Next()
	}
}

func verifiedIdentity(c *gin.Context, sessions SessionVerifier) *models.Identity {
	claims, err := GetClaims(c)
	if err != nil {
		return nil
	}

	identity, err := sessions.VerifySession(c.Request.Context(), claims.RegisteredClaims.ID, claims.RegisteredClaims.Subject)
	if err != nil {
		logger.WithUser(claims.RegisteredClaims.Subject).WithField("reason", err.Error()).Debug("Token session rejected")
		return nil
	}
	return identity
}

// GetSession returns the session context set by ResolveSession
func GetSession(c *gin.Context) (*session.Context, bool) {
	v, exists := c.Get(session.GinKey)
	if !exists {
		return nil, false
	}
	sc, ok := v.(*session.Context)
	return sc, ok
}

// CurrentState returns the session state, or signed out when none was resolved
func CurrentState(c *gin.Context) session.State {
	sc, ok := GetSession(c)
	if !ok {
		return session.State{Status: session.StatusSignedOut}
	}
	return sc.Current()
}

// RequireSignedIn rejects requests without a signed-in identity. The role is not checked.
func RequireSignedIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		state := CurrentState(c)
		switch {
		case state.Status == session.StatusUnknown:
			abortResolving(c)
		case !state.SignedIn():
			abortUnauthorized(c)
		default:
			c.Next()
		}
	}
}

// RequireRoles is the API form of the route guard. Unresolved sessions get 503,
// signed-out clients 401 and any other role 403.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch guard.Decide(CurrentState(c), roles) {
		case guard.Allow:
			c.Next()
		case guard.Loading:
			abortResolving(c)
		case guard.RedirectLogin:
			abortUnauthorized(c)
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "You do not have permission to access this resource",
				},
				"redirect": guard.HomePath,
			})
		}
	}
}

// GuardPage applies a page route's allow-list and answers with redirects
func GuardPage(route guard.Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := guard.DecideRoute(CurrentState(c), route)
		switch decision {
		case guard.Allow:
			c.Next()
		case guard.Loading:
			abortResolving(c)
		case guard.RedirectLogin, guard.RedirectHome:
			c.Redirect(http.StatusFound, guard.RedirectTarget(decision))
			c.Abort()
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NO_ROLE",
					"message": "Your account has no role assigned. Contact an administrator.",
				},
			})
		}
	}
}

func abortResolving(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "SESSION_RESOLVING",
			"message": "Session is still being resolved",
		},
	})
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": "Sign in to continue",
		},
		"redirect": guard.LoginPath,
	})
}
