package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EventStatus string

const (
	EventStatusDraft     EventStatus = "DRAFT"
	EventStatusPublished EventStatus = "PUBLISHED"
	EventStatusCancelled EventStatus = "CANCELLED"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusDraft, EventStatusPublished, EventStatusCancelled:
		return true
	}
	return false
}

// Event is the capacity-bearing record tickets are sold against.
// TicketsSold is only ever changed through the conditional reservation update.
type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID          int64       `bun:"id,pk,autoincrement" json:"id"`
	OrganizerID int64       `bun:"organizer_id,notnull" json:"organizer_id"`
	Title       string      `bun:"title,notnull" json:"title"`
	Description string      `bun:"description" json:"description,omitempty"`
	Category    string      `bun:"category" json:"category,omitempty"`
	Location    string      `bun:"location,notnull" json:"location"`
	StartDate   time.Time   `bun:"start_date,notnull" json:"start_date"`
	EndDate     time.Time   `bun:"end_date,notnull" json:"end_date"`
	Capacity    int         `bun:"capacity,notnull" json:"capacity"`
	TicketsSold int         `bun:"tickets_sold,notnull,default:0" json:"tickets_sold"`
	TicketPrice float64     `bun:"ticket_price,notnull,default:0" json:"ticket_price"`
	Status      EventStatus `bun:"status,notnull,default:'DRAFT'" json:"status"`
	CreatedAt   time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time   `bun:"updated_at,notnull" json:"updated_at"`
}

// Remaining is the headroom left before the event sells out.
func (e *Event) Remaining() int {
	if e.TicketsSold >= e.Capacity {
		return 0
	}
	return e.Capacity - e.TicketsSold
}

// EventSummary is the display subset attached to every ticket response.
type EventSummary struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID          int64     `bun:"id,pk" json:"id"`
	Title       string    `bun:"title" json:"title"`
	Location    string    `bun:"location" json:"location"`
	StartDate   time.Time `bun:"start_date" json:"start_date"`
	EndDate     time.Time `bun:"end_date" json:"end_date"`
	TicketPrice float64   `bun:"ticket_price" json:"ticket_price"`
}

// EventAvailability is the public view of an event's capacity counters.
type EventAvailability struct {
	EventID     int64       `json:"event_id"`
	Capacity    int         `json:"capacity"`
	TicketsSold int         `json:"tickets_sold"`
	Remaining   int         `json:"remaining"`
	Status      EventStatus `json:"status"`
}
