package goals

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
)

// NewGoal is the caller-supplied part of a goal.
type NewGoal struct {
	Title        string     `json:"title"`
	TargetAmount core.Money `json:"targetAmount"`
	Deadline     core.Date  `json:"deadline"`
}

// Service manages goals on top of a GoalStore.
type Service struct {
	// mu serialises read-modify-write cycles on stored goals.
	mu     sync.Mutex
	store  ledger.GoalStore
	now    func() time.Time
	newID  func() string
	logger *log.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(store ledger.GoalStore, opts ...Option) *Service {
	s := &Service{
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

func (s *Service) List(ctx context.Context) ([]core.Goal, error) {
	return s.store.ListGoals(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (core.Goal, error) {
	return s.store.GetGoal(ctx, id)
}

// Create stores a new goal with a fresh id, nothing saved yet and the
// current time as its creation stamp.
func (s *Service) Create(ctx context.Context, in NewGoal) (core.Goal, error) {
	g := core.Goal{
		ID:           s.newID(),
		Title:        strings.TrimSpace(in.Title),
		TargetAmount: in.TargetAmount,
		Deadline:     in.Deadline,
		CreatedAt:    s.now().UTC(),
	}
	if err := g.Validate(); err != nil {
		return core.Goal{}, fmt.Errorf("invalid goal: %w", err)
	}
	if err := s.store.AddGoal(ctx, g); err != nil {
		return core.Goal{}, fmt.Errorf("failed to save goal: %w", err)
	}
	s.logger.InfoContext(ctx, "Goal created",
		log.FieldGoalID, g.ID,
		log.FieldAmountCents, g.TargetAmount.Cents)
	return g, nil
}

// Update replaces the editable fields of an existing goal. The saved amount
// and creation time are kept.
func (s *Service) Update(ctx context.Context, id string, in NewGoal) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.store.GetGoal(ctx, id)
	if err != nil {
		return core.Goal{}, err
	}
	g.Title = strings.TrimSpace(in.Title)
	g.TargetAmount = in.TargetAmount
	g.Deadline = in.Deadline
	if err := g.Validate(); err != nil {
		return core.Goal{}, fmt.Errorf("invalid goal: %w", err)
	}
	if err := s.store.UpdateGoal(ctx, g); err != nil {
		return core.Goal{}, fmt.Errorf("failed to update goal: %w", err)
	}
	return g, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteGoal(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Goal deleted", log.FieldGoalID, id)
	return nil
}

// Contribute adds delta to the saved amount. Negative deltas withdraw; the
// balance never drops below zero but may exceed the target.
func (s *Service) Contribute(ctx context.Context, id string, delta int64) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.store.GetGoal(ctx, id)
	if err != nil {
		return core.Goal{}, err
	}
	g.CurrentAmount = core.Money{Cents: max(0, g.CurrentAmount.Cents+delta)}
	if err := s.store.UpdateGoal(ctx, g); err != nil {
		return core.Goal{}, fmt.Errorf("failed to update goal: %w", err)
	}
	s.logger.DebugContext(ctx, "Goal contribution recorded",
		log.FieldGoalID, id,
		"delta_cents", delta,
		"current", g.CurrentAmount.String())
	return g, nil
}

// Progress reports the state of goal id as of now.
func (s *Service) Progress(ctx context.Context, id string) (core.Goal, Progress, error) {
	g, err := s.store.GetGoal(ctx, id)
	if err != nil {
		return core.Goal{}, Progress{}, err
	}
	return g, ProgressOf(g, s.now()), nil
}
