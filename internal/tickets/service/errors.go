package tickets

import (
	"errors"
	"fmt"

	"event-ticketing/internal/database"
)

type ErrorKind string

const (
	KindInvalidQuantity        ErrorKind = "INVALID_QUANTITY"
	KindInvalidArgument        ErrorKind = "INVALID_ARGUMENT"
	KindEventNotFound          ErrorKind = "EVENT_NOT_FOUND"
	KindEventNotPurchasable    ErrorKind = "EVENT_NOT_PURCHASABLE"
	KindInsufficientCapacity   ErrorKind = "INSUFFICIENT_CAPACITY"
	KindBuyerLimitExceeded     ErrorKind = "BUYER_LIMIT_EXCEEDED"
	KindTicketCreationConflict ErrorKind = "TICKET_CREATION_CONFLICT"
	KindTransientStoreFailure  ErrorKind = "TRANSIENT_STORE_FAILURE"
	KindInvalidToken           ErrorKind = "INVALID_TOKEN"
	KindTicketNotFound         ErrorKind = "TICKET_NOT_FOUND"
	KindTicketAlreadyUsed      ErrorKind = "TICKET_ALREADY_USED"
	KindTicketNotValidNow      ErrorKind = "TICKET_NOT_VALID_NOW"
	KindInternal               ErrorKind = "INTERNAL"
)

// Error is the single error type returned by TicketService. Message is safe to
// show to clients; Err carries the underlying cause for logs only.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so errors.Is(err, ErrInsufficientCapacity) holds whatever
// the message says.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrInvalidQuantity        = &Error{Kind: KindInvalidQuantity, Message: "Quantity must be between 1 and 5"}
	ErrInvalidArgument        = &Error{Kind: KindInvalidArgument, Message: "Invalid argument"}
	ErrEventNotFound          = &Error{Kind: KindEventNotFound, Message: "Event not found"}
	ErrEventNotPurchasable    = &Error{Kind: KindEventNotPurchasable, Message: "Tickets can only be purchased for published events"}
	ErrInsufficientCapacity   = &Error{Kind: KindInsufficientCapacity, Message: "Not enough capacity"}
	ErrBuyerLimitExceeded     = &Error{Kind: KindBuyerLimitExceeded, Message: "Per-user ticket limit reached"}
	ErrTicketCreationConflict = &Error{Kind: KindTicketCreationConflict, Message: "Failed to create all tickets. Please try again."}
	ErrTransientStoreFailure  = &Error{Kind: KindTransientStoreFailure, Message: "Ticket service is busy. Please try again."}
	ErrInvalidToken           = &Error{Kind: KindInvalidToken, Message: "Invalid ticket hash format"}
	ErrTicketNotFound         = &Error{Kind: KindTicketNotFound, Message: "Ticket not found"}
	ErrTicketAlreadyUsed      = &Error{Kind: KindTicketAlreadyUsed, Message: "Ticket has already been used"}
	ErrTicketNotValidNow      = &Error{Kind: KindTicketNotValidNow, Message: "Ticket is not valid for this time"}
	ErrInternal               = &Error{Kind: KindInternal, Message: "Internal server error"}
)

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// wrap returns a copy of sentinel carrying cause.
func wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: cause}
}

// classify turns any error escaping a transaction into a *Error. Domain errors
// pass through; lock waits, timeouts and serialization aborts become
// TransientStoreFailure; everything else is Internal.
func classify(err error) *Error {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if database.IsTransient(err) {
		return wrap(ErrTransientStoreFailure, err)
	}
	return wrap(ErrInternal, err)
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindInternal
}

// Retryable reports whether a caller may attempt the same purchase again.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransientStoreFailure, KindTicketCreationConflict:
		return true
	}
	return false
}
