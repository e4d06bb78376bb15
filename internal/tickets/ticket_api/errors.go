package ticket_api

import (
	"errors"
	"net/http"

	tickets "event-ticketing/internal/tickets/service"
	"event-ticketing/internal/utils"
)

func statusFor(kind tickets.ErrorKind) int {
	switch kind {
	case tickets.KindInvalidQuantity, tickets.KindInvalidArgument, tickets.KindInvalidToken:
		return http.StatusBadRequest
	case tickets.KindEventNotFound, tickets.KindTicketNotFound:
		return http.StatusNotFound
	case tickets.KindEventNotPurchasable,
		tickets.KindInsufficientCapacity,
		tickets.KindBuyerLimitExceeded,
		tickets.KindTicketCreationConflict,
		tickets.KindTicketAlreadyUsed,
		tickets.KindTicketNotValidNow:
		return http.StatusConflict
	case tickets.KindTransientStoreFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders a TicketService error. Causes of internal errors
// are never sent to the client.
func writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *tickets.Error
	if !errors.As(err, &svcErr) {
		svcErr = tickets.ErrInternal
	}
	status := statusFor(svcErr.Kind)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	utils.WriteError(w, status, svcErr.Message, string(svcErr.Kind))
}
