package models

// EventSales reconciles the capacity counter against the issued ticket rows.
type EventSales struct {
	EventID     int64       `json:"event_id" bun:"event_id"`
	OrganizerID int64       `json:"organizer_id" bun:"organizer_id"`
	Title       string      `json:"title" bun:"title"`
	Status      EventStatus `json:"status" bun:"status"`
	Capacity    int         `json:"capacity" bun:"capacity"`
	TicketsSold int         `json:"tickets_sold" bun:"tickets_sold"`
	Issued      int         `json:"issued" bun:"issued"`
	Redeemed    int         `json:"redeemed" bun:"redeemed"`
	Buyers      int         `json:"buyers" bun:"buyers"`
	Remaining   int         `json:"remaining" bun:"-"`
	Consistent  bool        `json:"consistent" bun:"-"`
}

// DailySales is the number of tickets issued for an event on one UTC day.
type DailySales struct {
	Date        string  `json:"date" bun:"sales_date"`
	TicketsSold int     `json:"tickets_sold" bun:"tickets_sold"`
	Revenue     float64 `json:"revenue" bun:"revenue"`
}
