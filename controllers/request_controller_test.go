package controllers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairdesk-api/middleware"
	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/session"
	"github.com/kendall-kelly/repairdesk-api/testutil"
	"github.com/kendall-kelly/repairdesk-api/testutil/authtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requestRouter mounts the request handlers behind the same role gates as the API
func requestRouter(f *fixture, state session.State) *gin.Engine {
	rc := NewRequestController(f.requestSvc, f.identities.Changes)

	router := gin.New()
	router.Use(authtest.WithSession(state))
	router.POST("/requests", middleware.RequireRoles(models.RoleUser, models.RoleAdmin), rc.Create)
	router.GET("/requests", middleware.RequireRoles(models.RoleManager, models.RoleAdmin), rc.ListAll)
	router.GET("/requests/stream", middleware.RequireRoles(models.RoleManager, models.RoleAdmin), rc.StreamAll)
	router.GET("/requests/mine", middleware.RequireRoles(models.AllRoles...), rc.ListMine)
	router.GET("/requests/mine/stream", middleware.RequireRoles(models.AllRoles...), rc.StreamMine)
	router.GET("/requests/assigned", middleware.RequireRoles(models.RoleTechnician, models.RoleEngineer), rc.ListAssigned)
	router.GET("/requests/:id", middleware.RequireRoles(models.AllRoles...), rc.Get)
	router.PATCH("/requests/:id", middleware.RequireRoles(models.RoleAdmin), rc.Update)
	router.PATCH("/requests/:id/status", middleware.RequireRoles(models.RoleTechnician, models.RoleAdmin), rc.UpdateStatus)
	router.DELETE("/requests/:id", middleware.RequireRoles(models.RoleAdmin), rc.Delete)
	return router
}

func TestCreateRequestJSON(t *testing.T) {
	f := newFixture(t)
	router := requestRouter(f, authtest.SignedIn("u1", "u1@example.com", models.RoleUser))

	w := doJSON(t, router, http.MethodPost, "/requests", gin.H{
		"device_type":         "Laptop",
		"problem_description": "Fan is loud",
		"device_id":           "LT-9",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var req models.Request
	decodeData(t, w, &req)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, "u1", req.UserID)
	assert.Equal(t, "u1@example.com", req.UserEmail)
	assert.Equal(t, models.StatusPending, req.Status)
	assert.Equal(t, models.PriorityLow, req.Priority)
	assert.Nil(t, req.AssignedTo)
}

func TestCreateRequestValidation(t *testing.T) {
	f := newFixture(t)
	router := requestRouter(f, authtest.SignedIn("u1", "u1@example.com", models.RoleUser))

	w := doJSON(t, router, http.MethodPost, "/requests", gin.H{"device_type": "Laptop"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, "problem_description", env.Error.Field)
}

func TestCreateRequestMultipart(t *testing.T) {
	f := newFixture(t)
	router := requestRouter(f, authtest.SignedIn("u1", "u1@example.com", models.RoleUser))

	body, contentType := testutil.MultipartBody(t, map[string]string{
		"device_type":         "Phone",
		"problem_description": "Cracked screen",
	}, "attachment", "crack.png", []byte("png bytes"))

	httpReq := httptest.NewRequest(http.MethodPost, "/requests", body)
	httpReq.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httpReq)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var req models.Request
	decodeData(t, w, &req)
	require.NotNil(t, req.AttachmentURL)
	assert.Contains(t, *req.AttachmentURL, "mock=true")
	assert.Equal(t, 1, f.s3.FileCount())

	body, contentType = testutil.MultipartBody(t, map[string]string{
		"device_type":         "Phone",
		"problem_description": "Cracked screen",
	}, "attachment", "notes.txt", []byte("text"))
	httpReq = httptest.NewRequest(http.MethodPost, "/requests", body)
	httpReq.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httpReq)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_FILE_FORMAT", decode(t, w).Error.Code)
}

func TestCreateRequestRoleGate(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, requestRouter(f, authtest.SignedIn("t1", "t1@example.com", models.RoleTechnician)), http.MethodPost, "/requests", gin.H{
		"device_type": "Laptop", "problem_description": "x",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, requestRouter(f, authtest.SignedOut()), http.MethodPost, "/requests", gin.H{
		"device_type": "Laptop", "problem_description": "x",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListViews(t *testing.T) {
	f := newFixture(t)
	techID := f.addUser(t, "tech@example.com", models.RoleTechnician)
	laptop := f.addRequest(t, "u1", "u1@example.com", "Laptop")
	f.addRequest(t, "u1", "u1@example.com", "Printer")
	f.addRequest(t, "u2", "u2@example.com", "Phone")

	w := doJSON(t, requestRouter(f, authtest.SignedIn("admin", "admin@example.com", models.RoleAdmin)), http.MethodPatch, "/requests/"+laptop.ID, gin.H{
		"assigned_to": "tech@example.com",
		"priority":    "high",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var mine listResponse
	w = doJSON(t, requestRouter(f, authtest.SignedIn("u1", "u1@example.com", models.RoleUser)), http.MethodGet, "/requests/mine", nil)
	decodeData(t, w, &mine)
	assert.Equal(t, 2, mine.Total)

	manager := requestRouter(f, authtest.SignedIn("m1", "m1@example.com", models.RoleManager))
	var all listResponse
	decodeData(t, doJSON(t, manager, http.MethodGet, "/requests", nil), &all)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, 3, all.Counts[string(models.StatusPending)])

	var filtered listResponse
	decodeData(t, doJSON(t, manager, http.MethodGet, "/requests?q=print&status=Pending&priority=All", nil), &filtered)
	require.Equal(t, 1, filtered.Total)
	assert.Equal(t, "Printer", filtered.Requests[0].DeviceType)

	var high listResponse
	decodeData(t, doJSON(t, manager, http.MethodGet, "/requests?priority=High", nil), &high)
	require.Equal(t, 1, high.Total)
	assert.Equal(t, laptop.ID, high.Requests[0].ID)

	var assigned listResponse
	decodeData(t, doJSON(t, requestRouter(f, authtest.SignedIn(techID, "tech@example.com", models.RoleTechnician)), http.MethodGet, "/requests/assigned", nil), &assigned)
	require.Equal(t, 1, assigned.Total)
	assert.Equal(t, laptop.ID, assigned.Requests[0].ID)

	w = doJSON(t, requestRouter(f, authtest.SignedIn("u1", "u1@example.com", models.RoleUser)), http.MethodGet, "/requests", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetRequestVisibility(t *testing.T) {
	f := newFixture(t)
	req := f.addRequest(t, "u1", "u1@example.com", "Laptop")

	w := doJSON(t, requestRouter(f, authtest.SignedIn("u1", "u1@example.com", models.RoleUser)), http.MethodGet, "/requests/"+req.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, requestRouter(f, authtest.SignedIn("e1", "e1@example.com", models.RoleEngineer)), http.MethodGet, "/requests/"+req.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, requestRouter(f, authtest.SignedIn("u2", "u2@example.com", models.RoleUser)), http.MethodGet, "/requests/"+req.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, requestRouter(f, authtest.SignedIn("u1", "u1@example.com", models.RoleUser)), http.MethodGet, "/requests/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w).Error.Code)
}

func TestUpdateRequest(t *testing.T) {
	f := newFixture(t)
	req := f.addRequest(t, "u1", "u1@example.com", "Laptop")
	admin := requestRouter(f, authtest.SignedIn("admin", "admin@example.com", models.RoleAdmin))

	w := doJSON(t, admin, http.MethodPatch, "/requests/"+req.ID, gin.H{"status": "completed", "problem_description": "Replaced fan"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Request
	decodeData(t, w, &updated)
	assert.Equal(t, models.StatusCompleted, updated.Status)
	assert.Equal(t, "Replaced fan", updated.ProblemDescription)
	assert.Equal(t, "Laptop", updated.DeviceType)

	w = doJSON(t, admin, http.MethodPatch, "/requests/"+req.ID, gin.H{"assigned_to": "ghost@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "assigned_to", decode(t, w).Error.Field)

	w = doJSON(t, admin, http.MethodPatch, "/requests/"+req.ID, gin.H{"status": "Done"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, admin, http.MethodPatch, "/requests/missing", gin.H{"status": "Completed"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, requestRouter(f, authtest.SignedIn("m1", "m1@example.com", models.RoleManager)), http.MethodPatch, "/requests/"+req.ID, gin.H{"status": "Pending"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	techID := f.addUser(t, "tech@example.com", models.RoleTechnician)
	otherID := f.addUser(t, "other@example.com", models.RoleTechnician)
	req := f.addRequest(t, "u1", "u1@example.com", "Laptop")

	admin := requestRouter(f, authtest.SignedIn("admin", "admin@example.com", models.RoleAdmin))
	w := doJSON(t, admin, http.MethodPatch, "/requests/"+req.ID, gin.H{"assigned_to": techID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	tech := requestRouter(f, authtest.SignedIn(techID, "tech@example.com", models.RoleTechnician))
	w = doJSON(t, tech, http.MethodPatch, "/requests/"+req.ID+"/status", gin.H{"status": "in progress"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Request
	decodeData(t, w, &updated)
	assert.Equal(t, models.StatusInProgress, updated.Status)

	other := requestRouter(f, authtest.SignedIn(otherID, "other@example.com", models.RoleTechnician))
	w = doJSON(t, other, http.MethodPatch, "/requests/"+req.ID+"/status", gin.H{"status": "Completed"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, tech, http.MethodPatch, "/requests/"+req.ID+"/status", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteRequest(t *testing.T) {
	f := newFixture(t)
	req := f.addRequest(t, "u1", "u1@example.com", "Laptop")
	admin := requestRouter(f, authtest.SignedIn("admin", "admin@example.com", models.RoleAdmin))

	w := doJSON(t, admin, http.MethodDelete, "/requests/"+req.ID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "CONFIRMATION_REQUIRED", decode(t, w).Error.Code)

	w = doJSON(t, admin, http.MethodDelete, "/requests/"+req.ID+"?confirm=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, admin, http.MethodGet, "/requests/"+req.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, admin, http.MethodDelete, "/requests/"+req.ID+"?confirm=true", nil)
	assert.Equal(t, http.StatusOK, w.Code, "deleting again is a no-op")
}

type sseEvent struct {
	Name string
	Data string
}

// readEvents parses server-sent events from body onto a channel
func readEvents(body *bufio.Reader) <-chan sseEvent {
	events := make(chan sseEvent, 16)
	go func() {
		defer close(events)
		var ev sseEvent
		for {
			line, err := body.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event:"):
				ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				ev.Data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case line == "" && ev.Name != "":
				events <- ev
				ev = sseEvent{}
			}
		}
	}()
	return events
}

func nextEvent(t *testing.T, events <-chan sseEvent, name string) sseEvent {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed while waiting for %s", name)
			if ev.Name == name {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", name)
		}
	}
}

func TestStreamMine(t *testing.T) {
	f := newFixture(t)
	ownerID := f.addUser(t, "owner@example.com", models.RoleUser)
	server := httptest.NewServer(requestRouter(f, authtest.SignedIn(ownerID, "owner@example.com", models.RoleUser)))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/requests/mine/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(bufio.NewReader(resp.Body))

	var snap listResponse
	require.NoError(t, json.Unmarshal([]byte(nextEvent(t, events, "snapshot").Data), &snap))
	assert.Equal(t, 0, snap.Total)

	created := f.addRequest(t, ownerID, "owner@example.com", "Tablet")
	f.addRequest(t, "someone-else", "else@example.com", "Phone")

	for snap.Total == 0 {
		require.NoError(t, json.Unmarshal([]byte(nextEvent(t, events, "snapshot").Data), &snap))
	}
	require.Equal(t, 1, snap.Total, "other owners' requests stay out of the view")
	assert.Equal(t, created.ID, snap.Requests[0].ID)

	// signing out every session of the owner ends the stream
	require.NoError(t, f.identities.DeleteAccount(context.Background(), ownerID))
	ev := nextEvent(t, events, "signed_out")
	assert.Contains(t, ev.Data, "/login")
}
