package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairdesk-api/middleware"
	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authRouter(f *fixture) *gin.Engine {
	ac := NewAuthController(f.identities, f.adminSvc, f.profiles, f.cfg)
	session := middleware.ResolveSession(f.identities, f.profiles)

	router := gin.New()
	router.POST("/auth/signup", ac.SignUp)
	router.POST("/auth/login", ac.Login)
	router.POST("/auth/logout", middleware.EnsureValidToken(f.cfg), session, middleware.RequireSignedIn(), ac.Logout)
	router.GET("/users/me", middleware.OptionalToken(f.cfg), session, middleware.RequireSignedIn(), ac.Me)
	return router
}

type loginResponse struct {
	Token    string `json:"token"`
	Redirect string `json:"redirect"`
	User     struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

func login(t *testing.T, router http.Handler, email, password string) (*httptest.ResponseRecorder, loginResponse) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/auth/login", gin.H{"email": email, "password": password})
	var resp loginResponse
	if w.Code == http.StatusOK {
		decodeData(t, w, &resp)
	}
	return w, resp
}

func TestSignUp(t *testing.T) {
	f := newFixture(t)
	router := authRouter(f)

	w := doJSON(t, router, http.MethodPost, "/auth/signup", gin.H{"email": "new@example.com", "password": "secret123", "username": "newbie"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var user models.User
	decodeData(t, w, &user)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)

	tests := []struct {
		name       string
		body       gin.H
		wantStatus int
		wantCode   string
	}{
		{"duplicate email", gin.H{"email": "NEW@example.com", "password": "secret123"}, http.StatusConflict, models.CodeDuplicateEmail},
		{"weak password", gin.H{"email": "weak@example.com", "password": "123"}, http.StatusBadRequest, models.CodeWeakPassword},
		{"invalid email", gin.H{"email": "nope", "password": "secret123"}, http.StatusBadRequest, models.CodeInvalidEmail},
		{"missing fields", gin.H{"email": "x@example.com"}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/auth/signup", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decode(t, w).Error.Code)
		})
	}
}

func TestLoginRedirectsByRole(t *testing.T) {
	f := newFixture(t)
	router := authRouter(f)

	tests := []struct {
		email    string
		role     models.Role
		redirect string
	}{
		{"user@example.com", models.RoleUser, "/user-dashboard"},
		{"tech@example.com", models.RoleTechnician, "/technician-dashboard"},
		{"manager@example.com", models.RoleManager, "/manager-dashboard"},
		{"engineer@example.com", models.RoleEngineer, "/engineer-dashboard"},
		{"admin@example.com", models.RoleAdmin, "/admin-dashboard"},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			f.addUser(t, tt.email, tt.role)

			w, resp := login(t, router, tt.email, "secret123")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.NotEmpty(t, resp.Token)
			assert.Equal(t, tt.redirect, resp.Redirect)
			assert.Equal(t, string(tt.role), resp.User.Role)

			cookies := w.Result().Cookies()
			require.NotEmpty(t, cookies)
			assert.Equal(t, middleware.SessionCookie, cookies[0].Name)
			assert.Equal(t, resp.Token, cookies[0].Value)
			assert.True(t, cookies[0].HttpOnly)
		})
	}
}

func TestLoginErrors(t *testing.T) {
	f := newFixture(t)
	router := authRouter(f)
	id := f.addUser(t, "someone@example.com", models.RoleUser)

	w, _ := login(t, router, "someone@example.com", "wrong-password")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, models.CodeWrongPassword, decode(t, w).Error.Code)

	w, _ = login(t, router, "nobody@example.com", "secret123")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, models.CodeUserNotFound, decode(t, w).Error.Code)

	require.NoError(t, f.identities.SetDisabled(t.Context(), id, true))
	w, _ = login(t, router, "someone@example.com", "secret123")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, models.CodeUserDisabled, decode(t, w).Error.Code)
}

func TestLoginWithoutProfileLandsHome(t *testing.T) {
	f := newFixture(t)
	router := authRouter(f)
	_, err := f.identities.CreateAccount(t.Context(), "orphan@example.com", "secret123")
	require.NoError(t, err)

	w, resp := login(t, router, "orphan@example.com", "secret123")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "none", resp.User.Role)
	assert.Equal(t, "/", resp.Redirect)
}

func TestMeAndLogout(t *testing.T) {
	f := newFixture(t)
	router := authRouter(f)
	_, err := f.adminSvc.CreateAccountWithRole(t.Context(), services.CreateUserInput{
		Email:    "me@example.com",
		Password: "secret123",
		Role:     models.RoleEngineer,
		Username: "mia",
	})
	require.NoError(t, err)
	f.addUser(t, "plain@example.com", models.RoleUser)
	_, resp := login(t, router, "me@example.com", "secret123")

	authed := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+resp.Token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := authed(http.MethodGet, "/users/me")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me map[string]string
	decodeData(t, w, &me)
	assert.Equal(t, "me@example.com", me["email"])
	assert.Equal(t, "engineer", me["role"])
	assert.Equal(t, "/engineer-dashboard", me["landing"])
	assert.Equal(t, "mia", me["display_name"])

	_, plain := login(t, router, "plain@example.com", "secret123")
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+plain.Token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var plainMe map[string]string
	decodeData(t, w, &plainMe)
	assert.Equal(t, "plain@example.com", plainMe["display_name"], "the email stands in for a missing username")

	w = authed(http.MethodPost, "/auth/logout")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = authed(http.MethodGet, "/users/me")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "the token's session is revoked")

	w = doJSON(t, router, http.MethodGet, "/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
