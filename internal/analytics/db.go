package analytics

import (
	"context"

	"event-ticketing/internal/models"

	"github.com/uptrace/bun"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

// NewDB creates a new analytics DB handler
func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// GetEventSales aggregates the ticket rows of one event next to its counter.
// sql.ErrNoRows means the event does not exist.
func (db *DB) GetEventSales(ctx context.Context, eventID int64) (*models.EventSales, error) {
	var sales models.EventSales
	err := db.bun.NewRaw(`
		SELECT
			e.id AS event_id,
			e.organizer_id,
			e.title,
			e.status,
			e.capacity,
			e.tickets_sold,
			COUNT(t.id) AS issued,
			COUNT(t.used_at) AS redeemed,
			COUNT(DISTINCT t.user_id) AS buyers
		FROM events e
		LEFT JOIN tickets t ON t.event_id = e.id
		WHERE e.id = ?
		GROUP BY e.id, e.organizer_id, e.title, e.status, e.capacity, e.tickets_sold
	`, eventID).Scan(ctx, &sales)
	if err != nil {
		return nil, err
	}
	return &sales, nil
}

// GetDailySales counts tickets issued per day, priced at the event's ticket price
func (db *DB) GetDailySales(ctx context.Context, eventID int64) ([]models.DailySales, error) {
	daily := []models.DailySales{}
	err := db.bun.NewRaw(`
		SELECT
			CAST(DATE(t.created_at) AS TEXT) AS sales_date,
			COUNT(t.id) AS tickets_sold,
			COUNT(t.id) * MAX(e.ticket_price) AS revenue
		FROM tickets t
		JOIN events e ON e.id = t.event_id
		WHERE t.event_id = ?
		GROUP BY DATE(t.created_at)
		ORDER BY sales_date
	`, eventID).Scan(ctx, &daily)
	if err != nil {
		return nil, err
	}
	return daily, nil
}
