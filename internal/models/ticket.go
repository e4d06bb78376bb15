package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets,alias:t"`

	ID        int64      `bun:"id,pk,autoincrement" json:"id"`
	EventID   int64      `bun:"event_id,notnull" json:"event_id"`
	UserID    int64      `bun:"user_id,notnull" json:"user_id"`
	Token     string     `bun:"token,notnull,unique" json:"token"`
	UsedAt    *time.Time `bun:"used_at,nullzero" json:"used_at"`
	CreatedAt time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time  `bun:"updated_at,notnull" json:"updated_at"`

	Event *EventSummary `bun:"rel:belongs-to,join:event_id=id" json:"event,omitempty"`
}

func (t *Ticket) Used() bool {
	return t.UsedAt != nil
}

// TicketsPurchased is published once a purchase transaction has committed.
type TicketsPurchased struct {
	MessageID   string    `json:"message_id"`
	EventID     int64     `json:"event_id"`
	BuyerID     int64     `json:"buyer_id"`
	Quantity    int       `json:"quantity"`
	TicketIDs   []int64   `json:"ticket_ids"`
	TicketsSold int       `json:"tickets_sold"`
	Capacity    int       `json:"capacity"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// TicketRedeemed is published when a ticket moves from unused to used.
type TicketRedeemed struct {
	MessageID  string    `json:"message_id"`
	TicketID   int64     `json:"ticket_id"`
	EventID    int64     `json:"event_id"`
	UserID     int64     `json:"user_id"`
	RedeemedAt time.Time `json:"redeemed_at"`
}
