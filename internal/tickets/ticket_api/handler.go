package ticket_api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"event-ticketing/internal/auth"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	"event-ticketing/internal/tickets/qr"
	ticketredis "event-ticketing/internal/tickets/redis"
	tickets "event-ticketing/internal/tickets/service"
	"event-ticketing/internal/utils"

	"github.com/go-chi/chi/v5"
)

const idempotencyHeader = "Idempotency-Key"

// IdempotencyStore is satisfied by *ticketredis.IdempotencyStore.
type IdempotencyStore interface {
	Begin(ctx context.Context, buyerID int64, key, fingerprint string) (ticketredis.Outcome, *ticketredis.Record, string, error)
	Complete(ctx context.Context, buyerID int64, key, marker string, rec ticketredis.Record) error
	Abort(ctx context.Context, buyerID int64, key, marker string) error
}

type Handler struct {
	TicketService *tickets.TicketService
	Idempotency   IdempotencyStore
	Logger        *logger.Logger
}

func NewHandler(ticketService *tickets.TicketService, idem IdempotencyStore, log *logger.Logger) *Handler {
	return &Handler{TicketService: ticketService, Idempotency: idem, Logger: log}
}

// Mount registers the ticket routes. r must already run auth.Middleware.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api/tickets", func(r chi.Router) {
		r.With(auth.RequireRoles(models.RoleCustomer, models.RoleAdmin)).Post("/purchase", h.PurchaseTickets)
		r.Get("/my-tickets", h.MyTickets)
		r.Get("/my-tickets/{eventId}", h.MyTicketsForEvent)
		r.With(auth.RequireRoles(models.RoleOrganizer, models.RoleAdmin)).Post("/validate/{token}", h.ValidateTicket)
		r.Get("/{token}/qr", h.TicketQR)
		r.With(auth.RequireRoles(models.RoleAdmin)).Delete("/{ticketId}", h.DeleteTicket)
	})
}

type purchaseRequest struct {
	EventID  int64 `json:"event_id"`
	Quantity *int  `json:"quantity"`
}

// quantity defaults to one ticket when the field is absent.
func (p purchaseRequest) quantity() int {
	if p.Quantity == nil {
		return 1
	}
	return *p.Quantity
}

// fingerprint identifies what the request asks for, independent of how the
// JSON was formatted.
func (p purchaseRequest) fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("POST /api/tickets/purchase event_id=%d quantity=%d", p.EventID, p.quantity())))
	return hex.EncodeToString(sum[:])
}

// PurchaseTickets buys quantity tickets for the caller. Requests carrying an
// Idempotency-Key are answered once; repeats replay the stored response.
func (h *Handler) PurchaseTickets(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", "INVALID_BODY")
		return
	}
	if req.EventID <= 0 {
		utils.WriteError(w, http.StatusBadRequest, "event_id must be a positive integer", string(tickets.KindInvalidArgument))
		return
	}

	key := r.Header.Get(idempotencyHeader)
	if key == "" || h.Idempotency == nil {
		status, body := h.purchase(r.Context(), principal.ID, req)
		writeRaw(w, status, body)
		return
	}

	outcome, rec, marker, err := h.Idempotency.Begin(r.Context(), principal.ID, key, req.fingerprint())
	if err != nil {
		// fall through without replay protection rather than refuse the sale
		h.Logger.Warn("IDEMPOTENCY", fmt.Sprintf("begin %s: %v", key, err))
		status, body := h.purchase(r.Context(), principal.ID, req)
		writeRaw(w, status, body)
		return
	}
	switch outcome {
	case ticketredis.Replay:
		w.Header().Set("Idempotent-Replayed", "true")
		writeRaw(w, rec.Status, rec.Body)
		return
	case ticketredis.InProgress:
		utils.WriteError(w, http.StatusConflict, "A request with this Idempotency-Key is already in progress", "IDEMPOTENCY_IN_PROGRESS")
		return
	case ticketredis.Mismatch:
		utils.WriteError(w, http.StatusUnprocessableEntity, "Idempotency-Key was already used for a different request", "IDEMPOTENCY_KEY_MISMATCH")
		return
	}

	status, body := h.purchase(r.Context(), principal.ID, req)
	if status >= http.StatusInternalServerError {
		err = h.Idempotency.Abort(context.WithoutCancel(r.Context()), principal.ID, key, marker)
	} else {
		err = h.Idempotency.Complete(context.WithoutCancel(r.Context()), principal.ID, key, marker,
			ticketredis.Record{Status: status, Body: body})
	}
	if errors.Is(err, ticketredis.ErrClaimLost) {
		h.Logger.Error("IDEMPOTENCY", fmt.Sprintf("buyer=%d key %s expired before the purchase finished", principal.ID, key))
	} else if err != nil {
		h.Logger.Warn("IDEMPOTENCY", fmt.Sprintf("finish %s: %v", key, err))
	}
	writeRaw(w, status, body)
}

func (h *Handler) purchase(ctx context.Context, buyerID int64, req purchaseRequest) (int, []byte) {
	purchased, err := h.TicketService.PurchaseWithRetry(ctx, req.EventID, buyerID, req.quantity())
	if err != nil {
		rec := newBufferedResponse()
		writeServiceError(rec, err)
		return rec.status, rec.body.Bytes()
	}

	body, err := json.Marshal(utils.ListResponse(
		fmt.Sprintf("%d ticket(s) purchased successfully", len(purchased)), purchased, len(purchased)))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("encode purchase response: %v", err))
		return http.StatusInternalServerError, nil
	}
	return http.StatusCreated, body
}

func (h *Handler) MyTickets(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())

	list, err := h.TicketService.GetUserTickets(r.Context(), principal.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.ListResponse("Tickets retrieved successfully", list, len(list)))
}

func (h *Handler) MyTicketsForEvent(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())

	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventId"), 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid event ID", string(tickets.KindInvalidArgument))
		return
	}

	list, err := h.TicketService.GetUserTicketsForEvent(r.Context(), principal.ID, eventID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.ListResponse("Tickets retrieved successfully", list, len(list)))
}

func (h *Handler) ValidateTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.Redeem(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket validated successfully", ticket))
}

// TicketQR renders the ticket's token as a PNG for its owner.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFrom(r.Context())

	ticket, err := h.TicketService.GetTicketByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ticket.UserID != principal.ID && !principal.HasRole(models.RoleAdmin) {
		// same answer as a missing ticket so tokens cannot be probed
		writeServiceError(w, tickets.ErrTicketNotFound)
		return
	}

	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	png, err := qr.Render(ticket.Token, size)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("render qr for ticket %d: %v", ticket.ID, err))
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	ticketID, err := strconv.ParseInt(chi.URLParam(r, "ticketId"), 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid ticket ID", string(tickets.KindInvalidArgument))
		return
	}

	removed, err := h.TicketService.RemoveTicket(r.Context(), ticketID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket deleted successfully", removed))
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(status)
	w.Write(body)
}

// bufferedResponse captures an error response so it can be stored for replay.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: http.Header{}, status: http.StatusOK}
}

func (b *bufferedResponse) Header() http.Header         { return b.header }
func (b *bufferedResponse) Write(p []byte) (int, error) { return b.body.Write(p) }
func (b *bufferedResponse) WriteHeader(status int)      { b.status = status }
