package ticket_api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"event-ticketing/internal/auth"
	"event-ticketing/internal/database"
	eventdb "event-ticketing/internal/events/db"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	ticketdb "event-ticketing/internal/tickets/db"
	ticketredis "event-ticketing/internal/tickets/redis"
	tickets "event-ticketing/internal/tickets/service"
	"event-ticketing/internal/tickets/ticket_api"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "handler-test-secret"

type apiFixture struct {
	server *httptest.Server
	events *eventdb.DB
	store  *ticketdb.DB
}

func setupAPI(t *testing.T) *apiFixture {
	bunDB, err := database.OpenMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, database.CreateSchema(context.Background(), bunDB))

	events := &eventdb.DB{Bun: bunDB}
	store := &ticketdb.DB{Bun: bunDB}
	svc := tickets.NewTicketService(events, store, database.NewTxRunner(bunDB, 5*time.Second, 30*time.Second))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	idem := ticketredis.NewIdempotencyStore(client, time.Hour, time.Minute)

	log := logger.NewTestLogger()
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(secret, "", log))
		ticket_api.NewHandler(svc, idem, log).Mount(r)
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return &apiFixture{server: server, events: events, store: store}
}

func (f *apiFixture) publishedEvent(t *testing.T, capacity int) *models.Event {
	event := &models.Event{
		OrganizerID: 2,
		Title:       "Indie Showcase",
		Location:    "Warehouse 3",
		StartDate:   time.Now().Add(-time.Hour).UTC(),
		EndDate:     time.Now().Add(time.Hour).UTC(),
		Capacity:    capacity,
		Status:      models.EventStatusPublished,
	}
	require.NoError(t, f.events.CreateEvent(context.Background(), event))
	return event
}

type apiBody struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    []models.Ticket `json:"data"`
	Count   int             `json:"count"`
	Error   string          `json:"error"`
}

func (f *apiFixture) do(t *testing.T, method, path string, p models.Principal, body any, headers map[string]string) (*http.Response, []byte) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)

	tok, err := auth.IssueToken(secret, "", p, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func decode(t *testing.T, raw []byte) apiBody {
	var body apiBody
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

var (
	customer  = models.Principal{ID: 100, Role: models.RoleCustomer}
	other     = models.Principal{ID: 101, Role: models.RoleCustomer}
	organizer = models.Principal{ID: 200, Role: models.RoleOrganizer}
	admin     = models.Principal{ID: 300, Role: models.RoleAdmin}
)

func TestPurchaseEndpoint(t *testing.T) {
	f := setupAPI(t)
	event := f.publishedEvent(t, 10)

	resp, raw := f.do(t, http.MethodPost, "/api/tickets/purchase", customer,
		map[string]any{"event_id": event.ID, "quantity": 2}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	body := decode(t, raw)
	assert.True(t, body.Success)
	assert.Equal(t, "2 ticket(s) purchased successfully", body.Message)
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Data, 2)
	assert.Equal(t, customer.ID, body.Data[0].UserID)
	require.NotNil(t, body.Data[0].Event)
	assert.Equal(t, "Indie Showcase", body.Data[0].Event.Title)
}

func TestPurchaseEndpointErrors(t *testing.T) {
	f := setupAPI(t)
	event := f.publishedEvent(t, 3)

	cases := []struct {
		name   string
		who    models.Principal
		body   any
		status int
		code   string
	}{
		{"quantity too large", customer, map[string]any{"event_id": event.ID, "quantity": 6}, http.StatusBadRequest, "INVALID_QUANTITY"},
		{"quantity zero", customer, map[string]any{"event_id": event.ID, "quantity": 0}, http.StatusBadRequest, "INVALID_QUANTITY"},
		{"unknown event", customer, map[string]any{"event_id": 999, "quantity": 1}, http.StatusNotFound, "EVENT_NOT_FOUND"},
		{"over capacity", customer, map[string]any{"event_id": event.ID, "quantity": 4}, http.StatusConflict, "INSUFFICIENT_CAPACITY"},
		{"organizer cannot buy", organizer, map[string]any{"event_id": event.ID, "quantity": 1}, http.StatusForbidden, "FORBIDDEN"},
		{"bad body", customer, "not json", http.StatusBadRequest, "INVALID_BODY"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, raw := f.do(t, http.MethodPost, "/api/tickets/purchase", tc.who, tc.body, nil)
			assert.Equal(t, tc.status, resp.StatusCode, string(raw))
			assert.Equal(t, tc.code, decode(t, raw).Error)
		})
	}
}

func TestPurchaseIdempotencyKeyReplays(t *testing.T) {
	f := setupAPI(t)
	event := f.publishedEvent(t, 10)
	headers := map[string]string{"Idempotency-Key": "checkout-7"}
	req := map[string]any{"event_id": event.ID, "quantity": 2}

	first, raw1 := f.do(t, http.MethodPost, "/api/tickets/purchase", customer, req, headers)
	require.Equal(t, http.StatusCreated, first.StatusCode)

	second, raw2 := f.do(t, http.MethodPost, "/api/tickets/purchase", customer, req, headers)
	require.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))
	assert.JSONEq(t, string(raw1), string(raw2))

	held, err := f.store.CountByBuyer(context.Background(), nil, event.ID, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, held)
}

func TestPurchaseIdempotencyKeyReusedForOtherRequest(t *testing.T) {
	f := setupAPI(t)
	first := f.publishedEvent(t, 10)
	second := f.publishedEvent(t, 10)
	headers := map[string]string{"Idempotency-Key": "k1"}

	resp, raw := f.do(t, http.MethodPost, "/api/tickets/purchase", customer,
		map[string]any{"event_id": first.ID, "quantity": 1}, headers)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	resp, raw = f.do(t, http.MethodPost, "/api/tickets/purchase", customer,
		map[string]any{"event_id": second.ID, "quantity": 3}, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(raw))
	assert.Empty(t, resp.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, "IDEMPOTENCY_KEY_MISMATCH", decode(t, raw).Error)

	held, err := f.store.CountByBuyer(context.Background(), nil, second.ID, customer.ID)
	require.NoError(t, err)
	assert.Zero(t, held)

	// the same key with the original body still replays
	resp, _ = f.do(t, http.MethodPost, "/api/tickets/purchase", customer,
		map[string]any{"quantity": 1, "event_id": first.ID}, headers)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("Idempotent-Replayed"))
}

func TestPurchaseQuantityDefaultsToOne(t *testing.T) {
	f := setupAPI(t)
	event := f.publishedEvent(t, 10)

	resp, raw := f.do(t, http.MethodPost, "/api/tickets/purchase", customer,
		map[string]any{"event_id": event.ID}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	assert.Equal(t, 1, decode(t, raw).Count)

	held, err := f.store.CountByBuyer(context.Background(), nil, event.ID, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, held)
}

func TestMyTickets(t *testing.T) {
	f := setupAPI(t)
	first := f.publishedEvent(t, 10)
	second := f.publishedEvent(t, 10)

	for _, ev := range []*models.Event{first, second} {
		resp, _ := f.do(t, http.MethodPost, "/api/tickets/purchase", customer,
			map[string]any{"event_id": ev.ID, "quantity": 1}, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, raw := f.do(t, http.MethodGet, "/api/tickets/my-tickets", customer, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, decode(t, raw).Count)

	resp, raw = f.do(t, http.MethodGet, fmt.Sprintf("/api/tickets/my-tickets/%d", second.ID), customer, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, raw)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, second.ID, body.Data[0].EventID)

	resp, _ = f.do(t, http.MethodGet, "/api/tickets/my-tickets/abc", customer, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/tickets/my-tickets/4242", customer, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestValidateAndQR(t *testing.T) {
	f := setupAPI(t)
	event := f.publishedEvent(t, 10)

	_, raw := f.do(t, http.MethodPost, "/api/tickets/purchase", customer,
		map[string]any{"event_id": event.ID, "quantity": 1}, nil)
	code := decode(t, raw).Data[0].Token

	resp, raw := f.do(t, http.MethodGet, "/api/tickets/"+code+"/qr?size=200", customer, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())

	resp, _ = f.do(t, http.MethodGet, "/api/tickets/"+code+"/qr", other, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/tickets/"+code+"/qr", admin, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/tickets/validate/"+code, customer, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, raw = f.do(t, http.MethodPost, "/api/tickets/validate/"+code, organizer, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = f.do(t, http.MethodPost, "/api/tickets/validate/"+code, organizer, nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "TICKET_ALREADY_USED", decode(t, raw).Error)

	resp, raw = f.do(t, http.MethodPost, "/api/tickets/validate/xyz", organizer, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", decode(t, raw).Error)
}

func TestDeleteTicketAdminOnly(t *testing.T) {
	f := setupAPI(t)
	event := f.publishedEvent(t, 10)

	_, raw := f.do(t, http.MethodPost, "/api/tickets/purchase", customer,
		map[string]any{"event_id": event.ID, "quantity": 1}, nil)
	id := decode(t, raw).Data[0].ID
	path := fmt.Sprintf("/api/tickets/%d", id)

	resp, _ := f.do(t, http.MethodDelete, path, customer, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, path, admin, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, path, admin, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	reloaded, err := f.events.GetEventByID(context.Background(), nil, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.TicketsSold)
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	f := setupAPI(t)

	resp, err := http.Get(f.server.URL + "/api/tickets/my-tickets")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
