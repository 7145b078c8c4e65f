package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kendall-kelly/repairdesk-api/config"
	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/services"
	"github.com/kendall-kelly/repairdesk-api/stores"
	"github.com/kendall-kelly/repairdesk-api/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	cfg        *config.Config
	db         *gorm.DB
	identities *stores.IdentityStore
	profiles   *stores.ProfileStore
	requests   *stores.RequestStore
	vendors    *stores.VendorStore
	s3         *services.MockS3Service
	requestSvc *services.RequestService
	adminSvc   *services.UserAdminService
}

func newFixture(t *testing.T) *fixture {
	cfg := testutil.TestConfig()
	db := testutil.NewTestDB(t)
	f := &fixture{
		cfg: cfg,
		db:  db,
		identities: stores.NewIdentityStore(db, stores.TokenConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			TTL:      cfg.SessionTTL,
		}),
		profiles: stores.NewProfileStore(db),
		requests: stores.NewRequestStore(db),
		vendors:  stores.NewVendorStore(db),
		s3:       services.NewMockS3Service(),
	}
	f.requestSvc = services.NewRequestService(f.requests, f.profiles, f.vendors, services.NewS3AttachmentService(f.s3), false)
	f.adminSvc = services.NewUserAdminService(f.identities, f.profiles)
	return f
}

// addUser creates an account with a profile and returns its id
func (f *fixture) addUser(t *testing.T, email string, role models.Role) string {
	t.Helper()
	user, err := f.adminSvc.CreateAccountWithRole(context.Background(), services.CreateUserInput{
		Email:    email,
		Password: "secret123",
		Role:     role,
	})
	require.NoError(t, err)
	return user.ID
}

func (f *fixture) addRequest(t *testing.T, ownerID, ownerEmail, device string) *models.Request {
	t.Helper()
	req, err := f.requestSvc.Create(context.Background(), models.Identity{ID: ownerID, Email: ownerEmail}, services.CreateRequestInput{
		DeviceType:         device,
		ProblemDescription: device + " needs repair",
	})
	require.NoError(t, err)
	return req
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	env := decode(t, w)
	require.True(t, env.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}

type listResponse struct {
	Requests []models.Request `json:"requests"`
	Total    int              `json:"total"`
	Counts   map[string]int   `json:"counts"`
}
