package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairdesk-api/config"
	"github.com/kendall-kelly/repairdesk-api/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHealthCheck is a unit test for the HealthCheck handler function
func TestHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HealthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code, "Expected status code 200")

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err, "Response should be valid JSON")
	assert.Equal(t, true, response["success"])
	assert.Equal(t, "Repair Desk API is running", response["message"])
	assert.Len(t, response, 2, "Response should have exactly 2 fields")
}

func TestDatabaseStatus(t *testing.T) {
	previous := config.GetDB()
	defer config.SetDB(previous)
	config.SetDB(testutil.NewTestDB(t))

	router := gin.New()
	router.GET("/database/status", DatabaseStatus)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/database/status", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response struct {
		Success bool     `json:"success"`
		Tables  []string `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Subset(t, response.Tables, []string{"accounts", "sessions", "users", "requests", "vendors"})
}
