package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairdesk-api/config"
	"github.com/kendall-kelly/repairdesk-api/guard"
	"github.com/kendall-kelly/repairdesk-api/logger"
	"github.com/kendall-kelly/repairdesk-api/middleware"
	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/services"
	"github.com/kendall-kelly/repairdesk-api/session"
)

// Authenticator signs identities in and out
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*models.Identity, string, error)
	SignOut(ctx context.Context, sessionID string) error
}

// SignUpRequest represents the request body for self-service registration
type SignUpRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Username string `json:"username"`
}

// LoginRequest represents the request body for signing in
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthController struct {
	auth     Authenticator
	admin    *services.UserAdminService
	profiles session.ProfileReader
	cfg      *config.Config
}

func NewAuthController(auth Authenticator, admin *services.UserAdminService, profiles session.ProfileReader, cfg *config.Config) *AuthController {
	return &AuthController{auth: auth, admin: admin, profiles: profiles, cfg: cfg}
}

// SignUp handles POST /api/v1/auth/signup - registers a new account with the user role
func (ac *AuthController) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := ac.admin.SignUp(c.Request.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondData(c, http.StatusCreated, user)
}

// Login handles POST /api/v1/auth/login - returns a session token and the landing page for the role
func (ac *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	identity, token, err := ac.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	// resolve the role the same way every later request will
	sc := session.New(ac.profiles)
	defer sc.Close()
	sc.HandleIdentityChange(c.Request.Context(), identity)
	state := sc.Current()

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, token, int(ac.cfg.SessionTTL.Seconds()), "/", "", ac.cfg.IsProduction(), true)

	logger.WithUser(identity.ID).WithField("role", state.Role.String()).Info("User signed in")

	respondData(c, http.StatusOK, gin.H{
		"token":    token,
		"user":     userPayload(state),
		"redirect": guard.LandingRoute(state.Role),
	})
}

// Logout handles POST /api/v1/auth/logout - revokes the current session
func (ac *AuthController) Logout(c *gin.Context) {
	claims, err := middleware.GetClaims(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract session information")
		return
	}

	if err := ac.auth.SignOut(c.Request.Context(), claims.RegisteredClaims.ID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", ac.cfg.IsProduction(), true)
	respondData(c, http.StatusOK, gin.H{"redirect": guard.LoginPath})
}

// Me handles GET /api/v1/users/me - the signed-in identity, its role and display name
func (ac *AuthController) Me(c *gin.Context) {
	state := middleware.CurrentState(c)
	payload := userPayload(state)

	if state.Identity != nil {
		payload["display_name"] = state.Identity.Email
		if profile, err := ac.profiles.Get(c.Request.Context(), state.Identity.ID); err == nil {
			payload["display_name"] = profile.DisplayName()
		}
	}
	respondData(c, http.StatusOK, payload)
}

func userPayload(state session.State) gin.H {
	payload := gin.H{
		"role":    state.Role.String(),
		"landing": guard.LandingRoute(state.Role),
	}
	if state.Identity != nil {
		payload["id"] = state.Identity.ID
		payload["email"] = state.Identity.Email
	}
	return payload
}
