package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"event-ticketing/internal/models"
	"event-ticketing/internal/tickets/token"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Redeem marks a ticket as used at the door. A ticket can be redeemed once,
// and only between its event's start and end.
func (s *TicketService) Redeem(ctx context.Context, code string) (*models.Ticket, error) {
	if !token.Valid(code) {
		return nil, ErrInvalidToken
	}

	ticket, err := s.Tickets.GetByToken(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, s.internal("load ticket", err)
	}
	if ticket.Event == nil || ticket.Event.ID == 0 {
		return nil, newError(KindEventNotFound, "Associated event not found")
	}
	if ticket.Used() {
		return nil, ErrTicketAlreadyUsed
	}

	now := s.now().UTC()
	if now.Before(ticket.Event.StartDate) || now.After(ticket.Event.EndDate) {
		return nil, ErrTicketNotValidNow
	}

	marked, err := s.Tickets.MarkUsed(ctx, code, now)
	if err != nil {
		return nil, s.internal("mark ticket used", err)
	}
	if !marked {
		// another gate redeemed it between the read and the update
		return nil, ErrTicketAlreadyUsed
	}
	ticket.UsedAt = &now
	ticket.UpdatedAt = now

	s.logger.Info("REDEEM", fmt.Sprintf("ticket=%d event=%d user=%d", ticket.ID, ticket.EventID, ticket.UserID))
	if s.publisher != nil {
		msg := models.TicketRedeemed{
			MessageID:  uuid.NewString(),
			TicketID:   ticket.ID,
			EventID:    ticket.EventID,
			UserID:     ticket.UserID,
			RedeemedAt: now,
		}
		if err := s.publisher.PublishTicketRedeemed(ctx, msg); err != nil {
			s.logger.LogKafka("PUBLISH_FAILED", "tickets.redeemed", err.Error())
		}
	}
	return ticket, nil
}

func (s *TicketService) GetTicketByToken(ctx context.Context, code string) (*models.Ticket, error) {
	if !token.Valid(code) {
		return nil, ErrInvalidToken
	}
	ticket, err := s.Tickets.GetByToken(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, s.internal("load ticket", err)
	}
	return ticket, nil
}

// GetUserTickets lists every ticket the user holds, newest first.
func (s *TicketService) GetUserTickets(ctx context.Context, userID int64) ([]models.Ticket, error) {
	if userID <= 0 {
		return nil, newError(KindInvalidArgument, "Invalid user ID")
	}
	tickets, err := s.Tickets.GetByUser(ctx, userID)
	if err != nil {
		return nil, s.internal("list user tickets", err)
	}
	return tickets, nil
}

func (s *TicketService) GetUserTicketsForEvent(ctx context.Context, userID, eventID int64) ([]models.Ticket, error) {
	if userID <= 0 {
		return nil, newError(KindInvalidArgument, "Invalid user ID")
	}
	if eventID <= 0 {
		return nil, newError(KindInvalidArgument, "Invalid event ID")
	}

	exists, err := s.Events.EventExists(ctx, eventID)
	if err != nil {
		return nil, s.internal("check event", err)
	}
	if !exists {
		return nil, ErrEventNotFound
	}

	tickets, err := s.Tickets.GetByUserAndEvent(ctx, userID, eventID)
	if err != nil {
		return nil, s.internal("list user tickets for event", err)
	}
	return tickets, nil
}

// RemoveTicket deletes a ticket and gives its seat back to the event in the
// same transaction, keeping tickets_sold equal to the number of rows.
func (s *TicketService) RemoveTicket(ctx context.Context, ticketID int64) (*models.Ticket, error) {
	if ticketID <= 0 {
		return nil, newError(KindInvalidArgument, "Invalid ticket ID")
	}

	var removed *models.Ticket
	err := s.Tx.RunInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		ticket, err := s.Tickets.DeleteTicket(ctx, tx, ticketID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTicketNotFound
		}
		if err != nil {
			return fmt.Errorf("delete ticket: %w", err)
		}
		if err := s.Events.Release(ctx, tx, ticket.EventID, 1); err != nil {
			return fmt.Errorf("release capacity: %w", err)
		}
		removed = ticket
		return nil
	})
	if err != nil {
		classified := classify(err)
		if classified.Kind == KindInternal {
			s.logger.Error("TICKET", fmt.Sprintf("remove ticket %d: %v", ticketID, err))
		}
		return nil, classified
	}

	s.logger.Info("TICKET", fmt.Sprintf("Removed ticket %d of event %d", removed.ID, removed.EventID))
	return removed, nil
}

func (s *TicketService) internal(op string, err error) error {
	s.logger.Error("TICKET", fmt.Sprintf("%s: %v", op, err))
	return wrap(ErrInternal, fmt.Errorf("%s: %w", op, err))
}
