package db

import (
	"context"
	"time"

	"event-ticketing/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) idb(idb bun.IDB) bun.IDB {
	if idb == nil {
		return d.Bun
	}
	return idb
}

// withEvent attaches the display fields of the owning event
func withEvent(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Relation("Event", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Column("id", "title", "location", "start_date", "end_date", "ticket_price")
	})
}

// CountByBuyer counts the tickets userID already holds for eventID
func (d *DB) CountByBuyer(ctx context.Context, idb bun.IDB, eventID, userID int64) (int, error) {
	return d.idb(idb).NewSelect().
		Model((*models.Ticket)(nil)).
		Where("event_id = ?", eventID).
		Where("user_id = ?", userID).
		Count(ctx)
}

func (d *DB) CountByEvent(ctx context.Context, idb bun.IDB, eventID int64) (int, error) {
	return d.idb(idb).NewSelect().
		Model((*models.Ticket)(nil)).
		Where("event_id = ?", eventID).
		Count(ctx)
}

// InsertBatch inserts all tickets in one statement, skipping rows whose token
// already exists. The caller must compare the returned count with len(tickets).
func (d *DB) InsertBatch(ctx context.Context, idb bun.IDB, tickets []models.Ticket) (int, error) {
	if len(tickets) == 0 {
		return 0, nil
	}
	res, err := d.idb(idb).NewInsert().
		Model(&tickets).
		On("CONFLICT (token) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// GetByTokens re-reads the rows created for one purchase
func (d *DB) GetByTokens(ctx context.Context, idb bun.IDB, eventID, userID int64, tokens []string) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	if len(tokens) == 0 {
		return tickets, nil
	}
	err := withEvent(d.idb(idb).NewSelect().Model(&tickets)).
		Where("t.event_id = ?", eventID).
		Where("t.user_id = ?", userID).
		Where("t.token IN (?)", bun.In(tokens)).
		Order("t.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetByToken(ctx context.Context, token string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := withEvent(d.Bun.NewSelect().Model(&ticket)).
		Where("t.token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetByID(ctx context.Context, id int64) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetByUser → every ticket of a user, newest first
func (d *DB) GetByUser(ctx context.Context, userID int64) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	err := withEvent(d.Bun.NewSelect().Model(&tickets)).
		Where("t.user_id = ?", userID).
		Order("t.created_at DESC", "t.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// GetByUserAndEvent → a user's tickets for one event, newest first
func (d *DB) GetByUserAndEvent(ctx context.Context, userID, eventID int64) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	err := withEvent(d.Bun.NewSelect().Model(&tickets)).
		Where("t.user_id = ?", userID).
		Where("t.event_id = ?", eventID).
		Order("t.created_at DESC", "t.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// MarkUsed sets used_at once; false means the ticket was missing or already used.
func (d *DB) MarkUsed(ctx context.Context, token string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("used_at = ?", at).
		Set("updated_at = ?", at).
		Where("token = ?", token).
		Where("used_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteTicket removes a ticket row and returns it; sql.ErrNoRows when absent.
func (d *DB) DeleteTicket(ctx context.Context, idb bun.IDB, id int64) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.idb(idb).NewRaw(
		"DELETE FROM tickets WHERE id = ? RETURNING id, event_id, user_id, token, used_at, created_at, updated_at",
		id,
	).Scan(ctx, &ticket)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}
