package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairdesk-api/guard"
	"github.com/kendall-kelly/repairdesk-api/middleware"
)

// Page answers an allowed page route with what the client needs to render it.
// Access is decided by middleware.GuardPage before this runs.
func Page(route guard.Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := middleware.CurrentState(c)
		respondData(c, http.StatusOK, gin.H{
			"path":  route.Path,
			"title": route.Title,
			"user":  userPayload(state),
		})
	}
}

// PublicPage answers the login and sign-up pages. Signed-in users are sent to their landing page.
func PublicPage(path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := middleware.CurrentState(c)
		if state.SignedIn() {
			c.Redirect(http.StatusFound, guard.LandingRoute(state.Role))
			return
		}
		respondData(c, http.StatusOK, gin.H{"path": path})
	}
}
