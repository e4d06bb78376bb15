package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"event-ticketing/internal/database"
	eventdb "event-ticketing/internal/events/db"
	"event-ticketing/internal/models"
	ticketdb "event-ticketing/internal/tickets/db"
	"event-ticketing/internal/tickets/token"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*ticketdb.DB, *models.Event) {
	bunDB, err := database.OpenMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	require.NoError(t, database.CreateSchema(ctx, bunDB))

	event := &models.Event{
		OrganizerID: 1,
		Title:       "Rooftop Cinema",
		Location:    "Pier 4",
		StartDate:   time.Now().Add(-time.Hour).UTC(),
		EndDate:     time.Now().Add(2 * time.Hour).UTC(),
		Capacity:    50,
		TicketPrice: 12.5,
		Status:      models.EventStatusPublished,
	}
	require.NoError(t, (&eventdb.DB{Bun: bunDB}).CreateEvent(ctx, event))

	return &ticketdb.DB{Bun: bunDB}, event
}

func newTickets(eventID, userID int64, tokens ...string) []models.Ticket {
	now := time.Now().UTC()
	out := make([]models.Ticket, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, models.Ticket{
			EventID:   eventID,
			UserID:    userID,
			Token:     tok,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return out
}

func TestInsertBatchAndReadBack(t *testing.T) {
	d, event := setupTestDB(t)
	ctx := context.Background()

	tokens := []string{token.Generate(event.ID, 7), token.Generate(event.ID, 7), token.Generate(event.ID, 7)}
	inserted, err := d.InsertBatch(ctx, nil, newTickets(event.ID, 7, tokens...))
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	tickets, err := d.GetByTokens(ctx, nil, event.ID, 7, tokens)
	require.NoError(t, err)
	require.Len(t, tickets, 3)
	for _, ticket := range tickets {
		assert.NotZero(t, ticket.ID)
		assert.Nil(t, ticket.UsedAt)
		require.NotNil(t, ticket.Event)
		assert.Equal(t, "Rooftop Cinema", ticket.Event.Title)
		assert.Equal(t, "Pier 4", ticket.Event.Location)
	}

	count, err := d.CountByBuyer(ctx, nil, event.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = d.CountByBuyer(ctx, nil, event.ID, 8)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestInsertBatchSkipsDuplicateTokens(t *testing.T) {
	d, event := setupTestDB(t)
	ctx := context.Background()

	existing := token.Generate(event.ID, 1)
	inserted, err := d.InsertBatch(ctx, nil, newTickets(event.ID, 1, existing))
	require.NoError(t, err)
	require.Equal(t, 1, inserted)

	fresh := token.Generate(event.ID, 2)
	inserted, err = d.InsertBatch(ctx, nil, newTickets(event.ID, 2, existing, fresh))
	require.NoError(t, err)
	assert.Equal(t, 1, inserted, "the colliding token must be skipped, not overwritten")

	original, err := d.GetByToken(ctx, existing)
	require.NoError(t, err)
	assert.Equal(t, int64(1), original.UserID)

	total, err := d.CountByEvent(ctx, nil, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestMarkUsedOnce(t *testing.T) {
	d, event := setupTestDB(t)
	ctx := context.Background()

	tok := token.Generate(event.ID, 3)
	_, err := d.InsertBatch(ctx, nil, newTickets(event.ID, 3, tok))
	require.NoError(t, err)

	ok, err := d.MarkUsed(ctx, tok, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.MarkUsed(ctx, tok, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok, "a used ticket cannot be used again")

	ticket, err := d.GetByToken(ctx, tok)
	require.NoError(t, err)
	assert.True(t, ticket.Used())
}

func TestGetByUser(t *testing.T) {
	d, event := setupTestDB(t)
	ctx := context.Background()

	_, err := d.InsertBatch(ctx, nil, newTickets(event.ID, 4, token.Generate(event.ID, 4), token.Generate(event.ID, 4)))
	require.NoError(t, err)
	_, err = d.InsertBatch(ctx, nil, newTickets(event.ID, 5, token.Generate(event.ID, 5)))
	require.NoError(t, err)

	tickets, err := d.GetByUser(ctx, 4)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
	assert.Greater(t, tickets[0].ID, tickets[1].ID, "newest first")

	tickets, err = d.GetByUserAndEvent(ctx, 5, event.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 1)

	tickets, err = d.GetByUser(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestDeleteTicket(t *testing.T) {
	d, event := setupTestDB(t)
	ctx := context.Background()

	tok := token.Generate(event.ID, 6)
	_, err := d.InsertBatch(ctx, nil, newTickets(event.ID, 6, tok))
	require.NoError(t, err)
	ticket, err := d.GetByToken(ctx, tok)
	require.NoError(t, err)

	deleted, err := d.DeleteTicket(ctx, nil, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, event.ID, deleted.EventID)

	_, err = d.DeleteTicket(ctx, nil, ticket.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
