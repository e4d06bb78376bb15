package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	eventdb "event-ticketing/internal/events/db"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"

	"github.com/uptrace/bun"
)

var (
	ErrNotFound          = errors.New("event not found")
	ErrForbidden         = errors.New("only the event organizer can change this event")
	ErrCapacityBelowSold = eventdb.ErrCapacityBelowSold
)

// ValidationError carries a client-facing reason for rejecting input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

type EventDBLayer interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEventByID(ctx context.Context, idb bun.IDB, id int64) (*models.Event, error)
	ListPublished(ctx context.Context, limit, offset int) ([]models.Event, error)
	UpdateCapacity(ctx context.Context, id int64, capacity int) (*models.Event, error)
	UpdateStatus(ctx context.Context, id int64, status models.EventStatus) (*models.Event, error)
}

type EventService struct {
	DB     EventDBLayer
	Logger *logger.Logger
}

func NewEventService(db EventDBLayer, log *logger.Logger) *EventService {
	return &EventService{DB: db, Logger: log}
}

type CreateEventInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Location    string    `json:"location"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Capacity    int       `json:"capacity"`
	TicketPrice float64   `json:"ticket_price"`
}

func (in CreateEventInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return &ValidationError{"title is required"}
	case strings.TrimSpace(in.Location) == "":
		return &ValidationError{"location is required"}
	case in.StartDate.IsZero() || in.EndDate.IsZero():
		return &ValidationError{"start_date and end_date are required"}
	case !in.EndDate.After(in.StartDate):
		return &ValidationError{"end_date must be after start_date"}
	case in.Capacity <= 0:
		return &ValidationError{"capacity must be greater than 0"}
	case in.TicketPrice < 0:
		return &ValidationError{"ticket_price cannot be negative"}
	}
	return nil
}

// CreateEvent stores a DRAFT event owned by the caller.
func (s *EventService) CreateEvent(ctx context.Context, organizer models.Principal, in CreateEventInput) (*models.Event, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	event := &models.Event{
		OrganizerID: organizer.ID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Category:    in.Category,
		Location:    strings.TrimSpace(in.Location),
		StartDate:   in.StartDate.UTC(),
		EndDate:     in.EndDate.UTC(),
		Capacity:    in.Capacity,
		TicketPrice: in.TicketPrice,
		Status:      models.EventStatusDraft,
	}
	if err := s.DB.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.Logger.Info("EVENT", fmt.Sprintf("Event %d created by organizer %d", event.ID, organizer.ID))
	return event, nil
}

func (s *EventService) ListPublished(ctx context.Context, limit, offset int) ([]models.Event, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	events, err := s.DB.ListPublished(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list published events: %w", err)
	}
	return events, nil
}

func (s *EventService) Availability(ctx context.Context, id int64) (*models.EventAvailability, error) {
	event, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.EventAvailability{
		EventID:     event.ID,
		Capacity:    event.Capacity,
		TicketsSold: event.TicketsSold,
		Remaining:   event.Remaining(),
		Status:      event.Status,
	}, nil
}

// UpdateCapacity never lowers capacity below tickets already sold.
func (s *EventService) UpdateCapacity(ctx context.Context, caller models.Principal, id int64, capacity int) (*models.Event, error) {
	if capacity <= 0 {
		return nil, &ValidationError{"capacity must be greater than 0"}
	}
	if err := s.authorize(ctx, caller, id); err != nil {
		return nil, err
	}

	event, err := s.DB.UpdateCapacity(ctx, id, capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Logger.Info("EVENT", fmt.Sprintf("Event %d capacity set to %d (sold %d)", id, capacity, event.TicketsSold))
	return event, nil
}

func (s *EventService) UpdateStatus(ctx context.Context, caller models.Principal, id int64, status models.EventStatus) (*models.Event, error) {
	if !status.Valid() {
		return nil, &ValidationError{fmt.Sprintf("status must be one of DRAFT, PUBLISHED, CANCELLED; got %q", status)}
	}
	if err := s.authorize(ctx, caller, id); err != nil {
		return nil, err
	}

	event, err := s.DB.UpdateStatus(ctx, id, status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update event status: %w", err)
	}
	s.Logger.Info("EVENT", fmt.Sprintf("Event %d is now %s", id, status))
	return event, nil
}

func (s *EventService) get(ctx context.Context, id int64) (*models.Event, error) {
	event, err := s.DB.GetEventByID(ctx, nil, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load event %d: %w", id, err)
	}
	return event, nil
}

func (s *EventService) authorize(ctx context.Context, caller models.Principal, id int64) error {
	event, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if event.OrganizerID != caller.ID && !caller.HasRole(models.RoleAdmin) {
		s.Logger.LogSecurity("EVENT_EDIT_DENIED", fmt.Sprintf("user %d on event %d", caller.ID, id))
		return ErrForbidden
	}
	return nil
}
