// Package authtest provides session fixtures for handler tests
package authtest

import (
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/session"
)

// SignedIn builds a resolved signed-in state
func SignedIn(id, email string, role models.Role) session.State {
	return session.State{
		Status:   session.StatusSignedIn,
		Identity: &models.Identity{ID: id, Email: email},
		Role:     role,
	}
}

// SignedOut is the state of a request without a valid token
func SignedOut() session.State {
	return session.State{Status: session.StatusSignedOut}
}

// WithSession stands in for token validation and session resolution
func WithSession(state session.State) gin.HandlerFunc {
	return func(c *gin.Context) {
		if state.Identity != nil {
			c.Set("user_id", state.Identity.ID)
		}
		c.Set(session.GinKey, session.Resolved(state))
		c.Next()
	}
}
