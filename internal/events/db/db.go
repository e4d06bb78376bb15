package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"event-ticketing/internal/models"

	"github.com/uptrace/bun"
)

var ErrCapacityBelowSold = errors.New("capacity cannot be lower than tickets already sold")

// eventColumns is the snapshot returned by the conditional updates.
const eventColumns = `id, organizer_id, title, description, category, location, start_date, end_date,
	capacity, tickets_sold, ticket_price, status, created_at, updated_at`

type DB struct {
	Bun *bun.DB
}

// Reserve adds quantity to tickets_sold in one conditional statement. The row
// only matches when the event is PUBLISHED and the increment stays within
// capacity, so the database row lock serializes concurrent reservations.
// sql.ErrNoRows means one of those conditions did not hold.
func (d *DB) Reserve(ctx context.Context, idb bun.IDB, eventID int64, quantity int) (*models.Event, error) {
	var event models.Event
	err := idb.NewRaw(`
		UPDATE events
		SET tickets_sold = tickets_sold + ?, updated_at = ?
		WHERE id = ?
		  AND status = ?
		  AND tickets_sold + ? <= capacity
		RETURNING `+eventColumns,
		quantity, time.Now().UTC(), eventID, models.EventStatusPublished, quantity,
	).Scan(ctx, &event)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetEventByID → fetch one event, inside a transaction when idb is a bun.Tx
func (d *DB) GetEventByID(ctx context.Context, idb bun.IDB, id int64) (*models.Event, error) {
	if idb == nil {
		idb = d.Bun
	}
	var event models.Event
	err := idb.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) EventExists(ctx context.Context, id int64) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.Event)(nil)).
		Where("id = ?", id).
		Exists(ctx)
}

func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	now := time.Now().UTC()
	if event.Status == "" {
		event.Status = models.EventStatusDraft
	}
	event.TicketsSold = 0
	event.CreatedAt = now
	event.UpdatedAt = now

	_, err := d.Bun.NewInsert().Model(event).Exec(ctx)
	return err
}

// ListPublished → published events ordered by start date
func (d *DB) ListPublished(ctx context.Context, limit, offset int) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("status = ?", models.EventStatusPublished).
		Order("start_date ASC", "id ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// UpdateCapacity changes capacity only while it stays at or above tickets_sold.
// Raising capacity on a sold-out event re-opens it for purchase.
func (d *DB) UpdateCapacity(ctx context.Context, id int64, capacity int) (*models.Event, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", capacity)
	}

	var event models.Event
	err := d.Bun.NewRaw(`
		UPDATE events
		SET capacity = ?, updated_at = ?
		WHERE id = ? AND tickets_sold <= ?
		RETURNING `+eventColumns,
		capacity, time.Now().UTC(), id, capacity,
	).Scan(ctx, &event)
	if errors.Is(err, sql.ErrNoRows) {
		exists, existsErr := d.EventExists(ctx, id)
		if existsErr != nil {
			return nil, existsErr
		}
		if exists {
			return nil, ErrCapacityBelowSold
		}
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) UpdateStatus(ctx context.Context, id int64, status models.EventStatus) (*models.Event, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid event status %q", status)
	}

	var event models.Event
	err := d.Bun.NewRaw(`
		UPDATE events
		SET status = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+eventColumns,
		status, time.Now().UTC(), id,
	).Scan(ctx, &event)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Release gives back capacity for tickets removed by an administrator.
func (d *DB) Release(ctx context.Context, idb bun.IDB, eventID int64, quantity int) error {
	if idb == nil {
		idb = d.Bun
	}
	_, err := idb.NewRaw(`
		UPDATE events
		SET tickets_sold = tickets_sold - ?, updated_at = ?
		WHERE id = ? AND tickets_sold >= ?`,
		quantity, time.Now().UTC(), eventID, quantity,
	).Exec(ctx)
	return err
}
