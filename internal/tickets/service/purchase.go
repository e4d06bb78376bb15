package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"event-ticketing/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Purchase admits quantity tickets of eventID for buyerID or admits none.
//
// The capacity counter is incremented by a single conditional update, so
// concurrent buyers are serialized by the event row lock and can never push
// tickets_sold past capacity. The per-buyer cap, ticket inserts and the
// read-back all happen in the same transaction; any failure rolls the
// reservation back with it.
func (s *TicketService) Purchase(ctx context.Context, eventID, buyerID int64, quantity int) ([]models.Ticket, error) {
	if quantity < 1 || quantity > s.limits.MaxQuantity {
		return nil, newError(KindInvalidQuantity, "Quantity must be between 1 and %d", s.limits.MaxQuantity)
	}

	var (
		purchased []models.Ticket
		snapshot  *models.Event
	)
	err := s.Tx.RunInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		event, err := s.Events.Reserve(ctx, tx, eventID, quantity)
		if errors.Is(err, sql.ErrNoRows) {
			return s.rejectReservation(ctx, tx, eventID, quantity)
		}
		if err != nil {
			return fmt.Errorf("reserve capacity: %w", err)
		}

		owned, err := s.Tickets.CountByBuyer(ctx, tx, eventID, buyerID)
		if err != nil {
			return fmt.Errorf("count buyer tickets: %w", err)
		}
		if owned+quantity > s.limits.MaxPerBuyer {
			return newError(KindBuyerLimitExceeded,
				"Cannot purchase %d tickets. User can have maximum %d tickets per event. Current tickets: %d",
				quantity, s.limits.MaxPerBuyer, owned)
		}

		batch, tokens := s.newBatch(eventID, buyerID, quantity)
		inserted, err := s.Tickets.InsertBatch(ctx, tx, batch)
		if err != nil {
			return fmt.Errorf("insert tickets: %w", err)
		}
		created, err := s.Tickets.GetByTokens(ctx, tx, eventID, buyerID, tokens)
		if err != nil {
			return fmt.Errorf("read back tickets: %w", err)
		}
		if inserted != quantity || len(created) != quantity {
			return wrap(ErrTicketCreationConflict,
				fmt.Errorf("requested %d tickets, inserted %d, read back %d", quantity, inserted, len(created)))
		}

		purchased, snapshot = created, event
		return nil
	})
	if err != nil {
		return nil, s.purchaseFailure(eventID, buyerID, quantity, err)
	}

	s.logger.LogPurchase("ADMITTED", eventID, buyerID,
		fmt.Sprintf("%d tickets, %d/%d sold", quantity, snapshot.TicketsSold, snapshot.Capacity))
	s.publishPurchased(ctx, snapshot, buyerID, purchased)
	return purchased, nil
}

// rejectReservation explains why the conditional update matched no row. It
// reads the event inside the same transaction so the answer reflects the
// state the update saw.
func (s *TicketService) rejectReservation(ctx context.Context, tx bun.IDB, eventID int64, quantity int) error {
	event, err := s.Events.GetEventByID(ctx, tx, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}
	if event.Status != models.EventStatusPublished {
		return ErrEventNotPurchasable
	}
	return newError(KindInsufficientCapacity,
		"Not enough capacity. Requested: %d, Available: %d", quantity, event.Remaining())
}

func (s *TicketService) newBatch(eventID, buyerID int64, quantity int) ([]models.Ticket, []string) {
	now := s.now().UTC()
	batch := make([]models.Ticket, quantity)
	tokens := make([]string, quantity)
	for i := range batch {
		tokens[i] = s.generate(eventID, buyerID)
		batch[i] = models.Ticket{
			EventID:   eventID,
			UserID:    buyerID,
			Token:     tokens[i],
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return batch, tokens
}

func (s *TicketService) purchaseFailure(eventID, buyerID int64, quantity int, err error) error {
	classified := classify(err)
	switch classified.Kind {
	case KindInternal:
		s.logger.Error("PURCHASE", fmt.Sprintf("[FAILED] event=%d buyer=%d quantity=%d: %v", eventID, buyerID, quantity, err))
	case KindTransientStoreFailure, KindTicketCreationConflict:
		s.logger.LogPurchase("ABORTED", eventID, buyerID, fmt.Sprintf("quantity %d: %v", quantity, err))
	default:
		s.logger.LogPurchase("REJECTED", eventID, buyerID, classified.Message)
	}
	return classified
}

func (s *TicketService) publishPurchased(ctx context.Context, event *models.Event, buyerID int64, purchased []models.Ticket) {
	if s.publisher == nil {
		return
	}
	ids := make([]int64, len(purchased))
	for i, t := range purchased {
		ids[i] = t.ID
	}
	msg := models.TicketsPurchased{
		MessageID:   uuid.NewString(),
		EventID:     event.ID,
		BuyerID:     buyerID,
		Quantity:    len(purchased),
		TicketIDs:   ids,
		TicketsSold: event.TicketsSold,
		Capacity:    event.Capacity,
		PurchasedAt: s.now().UTC(),
	}
	if err := s.publisher.PublishTicketsPurchased(ctx, msg); err != nil {
		s.logger.LogKafka("PUBLISH_FAILED", "tickets.purchased", err.Error())
	}
}
