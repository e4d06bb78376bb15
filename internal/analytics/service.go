package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"event-ticketing/internal/models"

	"github.com/uptrace/bun"
)

var ErrEventNotFound = errors.New("event not found")

// Service handles analytics operations
type Service struct {
	db *DB
}

// NewService creates a new analytics service
func NewService(db *bun.DB) *Service {
	return &Service{db: NewDB(db)}
}

// EventReport is the sales view an organizer sees for one event.
type EventReport struct {
	Sales      *models.EventSales  `json:"sales"`
	DailySales []models.DailySales `json:"daily_sales"`
}

// EventSales reports the counter and the issued rows side by side. Consistent
// is false when tickets_sold and the row count disagree.
func (s *Service) EventSales(ctx context.Context, eventID int64) (*models.EventSales, error) {
	sales, err := s.db.GetEventSales(ctx, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("aggregate sales for event %d: %w", eventID, err)
	}

	sales.Remaining = sales.Capacity - sales.TicketsSold
	if sales.Remaining < 0 {
		sales.Remaining = 0
	}
	sales.Consistent = sales.TicketsSold == sales.Issued
	return sales, nil
}

// GetEventReport returns EventSales plus the per-day breakdown
func (s *Service) GetEventReport(ctx context.Context, eventID int64) (*EventReport, error) {
	sales, err := s.EventSales(ctx, eventID)
	if err != nil {
		return nil, err
	}
	daily, err := s.db.GetDailySales(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("daily sales for event %d: %w", eventID, err)
	}
	return &EventReport{Sales: sales, DailySales: daily}, nil
}
