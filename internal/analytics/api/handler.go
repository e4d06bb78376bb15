package analytics_api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"event-ticketing/internal/analytics"
	"event-ticketing/internal/auth"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	"event-ticketing/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, logger *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

// RegisterRoutes registers the analytics routes on a chi router that already
// runs auth.Middleware
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/analytics", func(r chi.Router) {
		r.Use(auth.RequireRoles(models.RoleOrganizer, models.RoleAdmin))
		r.Get("/events/{eventId}", h.GetEventAnalytics)
	})
}

// GetEventAnalytics reports sales for an event the caller organizes
func (h *Handler) GetEventAnalytics(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())

	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventId"), 10, 64)
	if err != nil || eventID <= 0 {
		utils.WriteError(w, http.StatusBadRequest, "Invalid event ID", "INVALID_ARGUMENT")
		return
	}

	report, err := h.Service.GetEventReport(r.Context(), eventID)
	if errors.Is(err, analytics.ErrEventNotFound) {
		utils.WriteError(w, http.StatusNotFound, "Event not found", "EVENT_NOT_FOUND")
		return
	}
	if err != nil {
		h.Logger.Error("ANALYTICS", err.Error())
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load analytics", "INTERNAL")
		return
	}

	if report.Sales.OrganizerID != principal.ID && !principal.HasRole(models.RoleAdmin) {
		h.Logger.LogSecurity("ANALYTICS_DENIED", fmt.Sprintf("user %d on event %d", principal.ID, eventID))
		utils.WriteError(w, http.StatusForbidden, "You do not organize this event", "FORBIDDEN")
		return
	}
	if !report.Sales.Consistent {
		h.Logger.Warn("ANALYTICS", fmt.Sprintf("event %d: tickets_sold=%d but %d tickets issued",
			eventID, report.Sales.TicketsSold, report.Sales.Issued))
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Analytics retrieved successfully", report))
}
