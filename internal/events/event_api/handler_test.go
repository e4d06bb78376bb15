package event_api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"event-ticketing/internal/auth"
	"event-ticketing/internal/database"
	eventdb "event-ticketing/internal/events/db"
	"event-ticketing/internal/events/event_api"
	events "event-ticketing/internal/events/service"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "event-api-secret"

func setupRouter(t *testing.T) http.Handler {
	bunDB, err := database.OpenMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, database.CreateSchema(context.Background(), bunDB))

	log := logger.NewTestLogger()
	h := event_api.NewHandler(events.NewEventService(&eventdb.DB{Bun: bunDB}, log), log)

	r := chi.NewRouter()
	h.MountPublic(r)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(secret, "", log))
		h.Mount(r)
	})
	return r
}

func call(t *testing.T, h http.Handler, method, path string, who *models.Principal, body any) (int, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if who != nil {
		tok, err := auth.IssueToken(secret, "", *who, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestEventLifecycle(t *testing.T) {
	h := setupRouter(t)
	organizer := &models.Principal{ID: 40, Role: models.RoleOrganizer}
	customer := &models.Principal{ID: 41, Role: models.RoleCustomer}

	start := time.Now().Add(24 * time.Hour).UTC()
	create := map[string]any{
		"title":      "Night Market",
		"location":   "Old Port",
		"start_date": start,
		"end_date":   start.Add(5 * time.Hour),
		"capacity":   2,
	}

	status, _ := call(t, h, http.MethodPost, "/api/events", customer, create)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := call(t, h, http.MethodPost, "/api/events", organizer, create)
	require.Equal(t, http.StatusCreated, status)
	data := body["data"].(map[string]any)
	id := int64(data["id"].(float64))
	assert.Equal(t, "DRAFT", data["status"])

	status, body = call(t, h, http.MethodGet, "/api/events", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["count"])

	status, _ = call(t, h, http.MethodPatch, fmt.Sprintf("/api/events/%d/status", id), organizer,
		map[string]any{"status": "PUBLISHED"})
	require.Equal(t, http.StatusOK, status)

	status, body = call(t, h, http.MethodGet, "/api/events", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])

	status, body = call(t, h, http.MethodPatch, fmt.Sprintf("/api/events/%d/capacity", id), organizer,
		map[string]any{"capacity": 5})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(5), body["data"].(map[string]any)["capacity"])

	status, body = call(t, h, http.MethodGet, fmt.Sprintf("/api/events/%d/availability", id), nil, nil)
	require.Equal(t, http.StatusOK, status)
	avail := body["data"].(map[string]any)
	assert.Equal(t, float64(5), avail["remaining"])
	assert.Equal(t, "PUBLISHED", avail["status"])
}

func TestEventErrors(t *testing.T) {
	h := setupRouter(t)
	organizer := &models.Principal{ID: 40, Role: models.RoleOrganizer}

	status, body := call(t, h, http.MethodPost, "/api/events", organizer, map[string]any{"title": "No venue"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", body["error"])

	status, _ = call(t, h, http.MethodGet, "/api/events/999/availability", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call(t, h, http.MethodGet, "/api/events/abc/availability", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = call(t, h, http.MethodPatch, "/api/events/999/status", organizer, map[string]any{"status": "PUBLISHED"})
	assert.Equal(t, http.StatusNotFound, status)
}
