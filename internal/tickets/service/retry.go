package tickets

import (
	"context"
	"fmt"
	"time"

	"event-ticketing/internal/models"

	"github.com/cenkalti/backoff/v4"
)

// PurchaseWithRetry calls Purchase again after transient aborts and token
// collisions, with jittered exponential backoff. Every attempt is a complete,
// independent transaction; business rejections are returned immediately.
func (s *TicketService) PurchaseWithRetry(ctx context.Context, eventID, buyerID int64, quantity int) ([]models.Ticket, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retry.Initial
	b.MaxInterval = s.retry.MaxBackoff
	b.MaxElapsedTime = 0

	// Attempts counts calls to Purchase, the first one included
	retries := s.retry.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	var purchased []models.Ticket
	operation := func() error {
		tickets, err := s.Purchase(ctx, eventID, buyerID, quantity)
		if err == nil {
			purchased = tickets
			return nil
		}
		if Retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("PURCHASE", fmt.Sprintf("event=%d buyer=%d retrying in %s: %v", eventID, buyerID, wait, err))
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, classify(err)
	}
	return purchased, nil
}
