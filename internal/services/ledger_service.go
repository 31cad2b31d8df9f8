package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/amqp"
	"fintrack/internal/capture"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
)

// ErrNothingCaptured is returned when a phrase holds no usable amount.
var ErrNothingCaptured = errors.New("no amount found in text")

// Publisher announces transaction changes to the sync worker.
type Publisher interface {
	PublishTransactionSync(ctx context.Context, id string, op amqp.Op, version int64) error
	Close() error
}

// versioned stores expose row versions so events can name the change they
// announce.
type versioned interface {
	TransactionVersion(ctx context.Context, id string) (int64, error)
}

// TransactionInput is the caller-supplied part of a transaction.
type TransactionInput struct {
	Kind     core.Kind  `json:"type"`
	Category string     `json:"category"`
	Amount   core.Money `json:"amount"`
	Date     core.Date  `json:"date"`
	Note     string     `json:"note,omitempty"`
}

// LedgerService orchestrates transaction writes across the store and AMQP.
// The local write is authoritative; a failed publish is logged and left to
// the worker's sweep.
type LedgerService struct {
	store     ledger.Store
	publisher Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() string
	logger    *log.Logger
	closers   []func() error
}

type Option func(*LedgerService)

// WithPublisher enables change events. A nil publisher disables them.
func WithPublisher(p Publisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *LedgerService) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func WithIDs(newID func() string) Option {
	return func(s *LedgerService) { s.newID = newID }
}

func WithLogger(l *log.Logger) Option {
	return func(s *LedgerService) { s.logger = l }
}

// WithCloser registers a cleanup run by Close after the publisher.
func WithCloser(fn func() error) Option {
	return func(s *LedgerService) { s.closers = append(s.closers, fn) }
}

func NewLedgerService(store ledger.Store, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:  store,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: log.Default().WithComponent(log.ComponentLedger),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store exposes the underlying ledger for read paths and backups.
func (s *LedgerService) Store() ledger.Store {
	return s.store
}

func (s *LedgerService) List(ctx context.Context) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx)
}

// Create stores a new transaction under a fresh id and announces it.
func (s *LedgerService) Create(ctx context.Context, in TransactionInput) (core.Transaction, error) {
	tx := in.transaction(s.newID())
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("invalid transaction: %w", err)
	}
	if err := s.store.AddTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Transaction created",
		log.NewFields().WithTransaction(tx.ID, string(tx.Kind), tx.Category, tx.Amount.Cents).ToSlice()...)
	s.publish(ctx, tx.ID, amqp.OpUpsert)
	return tx, nil
}

// Update replaces transaction id with in.
func (s *LedgerService) Update(ctx context.Context, id string, in TransactionInput) (core.Transaction, error) {
	tx := in.transaction(id)
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("invalid transaction: %w", err)
	}
	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	s.publish(ctx, tx.ID, amqp.OpUpsert)
	return tx, nil
}

func (s *LedgerService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.logger.InfoContext(ctx, "Transaction deleted", log.FieldTransactionID, id)
	s.publish(ctx, id, amqp.OpDelete)
	return nil
}

// Capture parses a free-text phrase and stores the resulting transaction.
func (s *LedgerService) Capture(ctx context.Context, text string) (core.Transaction, error) {
	draft, ok := capture.Parse(text, s.now())
	if !ok {
		return core.Transaction{}, ErrNothingCaptured
	}
	return s.Create(ctx, TransactionInput{
		Kind:     draft.Kind,
		Category: draft.Category,
		Amount:   draft.Amount,
		Date:     draft.Date,
		Note:     draft.Note,
	})
}

func (s *LedgerService) publish(ctx context.Context, id string, op amqp.Op) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not configured, skipping sync message", log.FieldTransactionID, id)
		return
	}

	var version int64
	if v, ok := s.store.(versioned); ok {
		if n, err := v.TransactionVersion(ctx, id); err == nil {
			version = n
		}
	}

	outcome := "ok"
	if err := s.publisher.PublishTransactionSync(ctx, id, op, version); err != nil {
		outcome = "error"
		s.logger.ErrorContext(ctx, "Failed to publish sync message",
			log.FieldTransactionID, id,
			"op", op,
			log.FieldError, err)
	}
	if s.metrics != nil {
		s.metrics.EventsOut.WithLabelValues(string(op), outcome).Inc()
	}
}

// Close closes the publisher and the registered resources.
func (s *LedgerService) Close() error {
	var errs []error
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	for _, fn := range s.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}
	return nil
}

func (in TransactionInput) transaction(id string) core.Transaction {
	return core.Transaction{
		ID:       id,
		Kind:     in.Kind,
		Category: strings.TrimSpace(in.Category),
		Amount:   in.Amount,
		Date:     in.Date,
		Note:     strings.TrimSpace(in.Note),
	}
}
