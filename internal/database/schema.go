package database

import (
	"context"
	"fmt"

	"event-ticketing/internal/models"

	"github.com/uptrace/bun"
)

// CreateSchema builds the tables from the bun models. Postgres deployments use
// the SQL migrations instead; this path serves SQLite and tests.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{(*models.Event)(nil), (*models.Ticket)(nil)} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	_, err := db.NewCreateIndex().
		Model((*models.Ticket)(nil)).
		Index("idx_tickets_event_user").
		Column("event_id", "user_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create tickets index: %w", err)
	}
	return nil
}
