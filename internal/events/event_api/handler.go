package event_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"event-ticketing/internal/auth"
	events "event-ticketing/internal/events/service"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	"event-ticketing/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	EventService *events.EventService
	Logger       *logger.Logger
}

func NewHandler(svc *events.EventService, log *logger.Logger) *Handler {
	return &Handler{EventService: svc, Logger: log}
}

// MountPublic registers routes that need no token.
func (h *Handler) MountPublic(r chi.Router) {
	r.Get("/api/events", h.ListEvents)
	r.Get("/api/events/{eventId}/availability", h.GetAvailability)
}

// Mount registers organizer routes. r must already run auth.Middleware.
func (h *Handler) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRoles(models.RoleOrganizer, models.RoleAdmin))
		r.Post("/api/events", h.CreateEvent)
		r.Patch("/api/events/{eventId}/capacity", h.UpdateCapacity)
		r.Patch("/api/events/{eventId}/status", h.UpdateStatus)
	})
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.EventService.ListPublished(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.ListResponse("Events retrieved successfully", list, len(list)))
}

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := eventID(w, r)
	if !ok {
		return
	}
	avail, err := h.EventService.Availability(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Availability retrieved successfully", avail))
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())

	var in events.CreateEventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", "INVALID_BODY")
		return
	}
	event, err := h.EventService.CreateEvent(r.Context(), principal, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Event created successfully", event))
}

func (h *Handler) UpdateCapacity(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	id, ok := eventID(w, r)
	if !ok {
		return
	}

	var body struct {
		Capacity int `json:"capacity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", "INVALID_BODY")
		return
	}
	event, err := h.EventService.UpdateCapacity(r.Context(), principal, id, body.Capacity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Capacity updated successfully", event))
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())
	id, ok := eventID(w, r)
	if !ok {
		return
	}

	var body struct {
		Status models.EventStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", "INVALID_BODY")
		return
	}
	event, err := h.EventService.UpdateStatus(r.Context(), principal, id, body.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Status updated successfully", event))
}

func eventID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "eventId"), 10, 64)
	if err != nil || id <= 0 {
		utils.WriteError(w, http.StatusBadRequest, "Invalid event ID", "INVALID_ARGUMENT")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var vErr *events.ValidationError
	switch {
	case errors.As(err, &vErr):
		utils.WriteError(w, http.StatusBadRequest, vErr.Reason, "VALIDATION_FAILED")
	case errors.Is(err, events.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, "Event not found", "EVENT_NOT_FOUND")
	case errors.Is(err, events.ErrForbidden):
		utils.WriteError(w, http.StatusForbidden, err.Error(), "FORBIDDEN")
	case errors.Is(err, events.ErrCapacityBelowSold):
		utils.WriteError(w, http.StatusConflict, "Capacity cannot be lower than tickets already sold", "CAPACITY_BELOW_SOLD")
	default:
		h.Logger.Error("EVENT", fmt.Sprintf("request failed: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL")
	}
}
