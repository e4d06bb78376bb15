package tickets

import (
	"context"
	"time"

	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
	"event-ticketing/internal/tickets/token"

	"github.com/uptrace/bun"
)

type EventStore interface {
	Reserve(ctx context.Context, idb bun.IDB, eventID int64, quantity int) (*models.Event, error)
	Release(ctx context.Context, idb bun.IDB, eventID int64, quantity int) error
	GetEventByID(ctx context.Context, idb bun.IDB, id int64) (*models.Event, error)
	EventExists(ctx context.Context, id int64) (bool, error)
}

type TicketStore interface {
	CountByBuyer(ctx context.Context, idb bun.IDB, eventID, userID int64) (int, error)
	InsertBatch(ctx context.Context, idb bun.IDB, tickets []models.Ticket) (int, error)
	GetByTokens(ctx context.Context, idb bun.IDB, eventID, userID int64, tokens []string) ([]models.Ticket, error)
	GetByToken(ctx context.Context, token string) (*models.Ticket, error)
	GetByUser(ctx context.Context, userID int64) ([]models.Ticket, error)
	GetByUserAndEvent(ctx context.Context, userID, eventID int64) ([]models.Ticket, error)
	MarkUsed(ctx context.Context, token string, at time.Time) (bool, error)
	DeleteTicket(ctx context.Context, idb bun.IDB, id int64) (*models.Ticket, error)
}

// TxRunner runs fn in one transaction, committing only when fn returns nil.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.IDB) error) error
}

// Publisher receives domain events after the fact. Failures are logged and
// never change the outcome of the operation that produced them.
type Publisher interface {
	PublishTicketsPurchased(ctx context.Context, msg models.TicketsPurchased) error
	PublishTicketRedeemed(ctx context.Context, msg models.TicketRedeemed) error
}

type Limits struct {
	MaxQuantity int
	MaxPerBuyer int
}

func DefaultLimits() Limits {
	return Limits{MaxQuantity: 5, MaxPerBuyer: 5}
}

// RetryPolicy bounds PurchaseWithRetry. Attempts is the total number of
// Purchase calls.
type RetryPolicy struct {
	Attempts   int
	Initial    time.Duration
	MaxBackoff time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Initial: 50 * time.Millisecond, MaxBackoff: time.Second}
}

type TicketService struct {
	Events  EventStore
	Tickets TicketStore
	Tx      TxRunner

	publisher Publisher
	logger    *logger.Logger
	generate  token.Generator
	limits    Limits
	retry     RetryPolicy
	now       func() time.Time
}

type Option func(*TicketService)

func WithPublisher(p Publisher) Option {
	return func(s *TicketService) { s.publisher = p }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *TicketService) { s.logger = l }
}

func WithTokenGenerator(g token.Generator) Option {
	return func(s *TicketService) { s.generate = g }
}

func WithLimits(l Limits) Option {
	return func(s *TicketService) { s.limits = l }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *TicketService) { s.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *TicketService) { s.now = now }
}

func NewTicketService(events EventStore, tickets TicketStore, tx TxRunner, opts ...Option) *TicketService {
	s := &TicketService{
		Events:   events,
		Tickets:  tickets,
		Tx:       tx,
		logger:   logger.NewTestLogger(),
		generate: token.Generate,
		limits:   DefaultLimits(),
		retry:    DefaultRetryPolicy(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TicketService) Limits() Limits {
	return s.limits
}
