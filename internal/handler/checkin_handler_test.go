package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"canteenhq/canteen-checkin/internal/database"
	"canteenhq/canteen-checkin/internal/handler"
	"canteenhq/canteen-checkin/internal/models"
	"canteenhq/canteen-checkin/internal/repository"
	"canteenhq/canteen-checkin/internal/router"
	"canteenhq/canteen-checkin/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "admission.db"), database.AdmissionMigrations, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := repository.NewAdmissionRepository(db.DB)
	require.NoError(t, repo.CreateSubject(models.Subject{
		SubjectID:  "E100",
		Name:       "Alice Johnson",
		EntityType: models.EntityEmployee,
	}))
	require.NoError(t, repo.CreateSubject(models.Subject{
		SubjectID:  "CONTRACTOR_7",
		Name:       "Dana Contractor",
		EntityType: models.EntityContractor,
	}))

	svc := service.NewAdmissionService(repo, 4*time.Hour, time.Minute, zap.NewNop())
	return router.New(handler.NewCheckInHandler(svc, zap.NewNop()), zap.NewNop())
}

func doCheckIn(t *testing.T, srv http.Handler, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkin", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestCheckOnlyReportsClear(t *testing.T) {
	srv := newTestServer(t)

	rec := doCheckIn(t, srv, map[string]interface{}{"employeeId": "E100", "checkOnly": true})

	require.Equal(t, http.StatusOK, rec.Code)
	var status models.CheckStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.AlreadyCheckedIn)
	assert.Equal(t, "E100", status.EmployeeID)
	assert.Equal(t, models.EntityEmployee, status.EntityType)
}

func TestCommitThenReplay(t *testing.T) {
	srv := newTestServer(t)

	rec := doCheckIn(t, srv, map[string]interface{}{"employeeId": "E100", "sourceType": models.SourceQR, "guestCount": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.CheckInResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "Alice Johnson", resp.Data.Name)

	// Check-only now reflects the cooldown
	rec = doCheckIn(t, srv, map[string]interface{}{"employeeId": "E100", "checkOnly": true})
	require.Equal(t, http.StatusOK, rec.Code)
	var status models.CheckStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.AlreadyCheckedIn)
	require.NotNil(t, status.CooldownEndsAt)

	// Replaying the commit is rejected with a structured code
	rec = doCheckIn(t, srv, map[string]interface{}{"employeeId": "E100", "sourceType": models.SourceQR})
	require.Equal(t, http.StatusConflict, rec.Code)
	var errResp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, models.CodeRestricted, errResp.Code)
	assert.Contains(t, errResp.Message, "Please wait")
	assert.Equal(t, "E100", errResp.EmployeeID)
	require.NotNil(t, errResp.CooldownEndsAt)
}

func TestCheckInContractor(t *testing.T) {
	srv := newTestServer(t)

	rec := doCheckIn(t, srv, map[string]interface{}{"contractorId": "7", "sourceType": models.SourceManual})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.CheckInResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.EntityContractor, resp.EntityType)
}

func TestCheckInUnknownSubject(t *testing.T) {
	srv := newTestServer(t)

	rec := doCheckIn(t, srv, map[string]interface{}{"employeeId": "E999"})

	require.Equal(t, http.StatusNotFound, rec.Code)
	var errResp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, models.CodeNotFound, errResp.Code)
	assert.Equal(t, "Employee or contractor not found", errResp.Message)
}

func TestCheckInValidationErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{name: "no subject reference", body: map[string]interface{}{"sourceType": models.SourceQR}},
		{name: "two subject references", body: map[string]interface{}{"employeeId": "E100", "contractorId": "7"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doCheckIn(t, srv, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var errResp models.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
			assert.Equal(t, models.CodeValidationError, errResp.Code)
		})
	}
}

func TestCheckInMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkin", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, models.CodeValidationError, errResp.Code)
}

func TestSearchEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?query=alice", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var subjects []models.Subject
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subjects))
	require.Len(t, subjects, 1)
	assert.Equal(t, "E100", subjects[0].SubjectID)

	// No matches still yields a JSON array, never null
	req = httptest.NewRequest(http.MethodGet, "/api/v1/search?query=zzz", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
