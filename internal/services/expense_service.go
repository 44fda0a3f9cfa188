// Package services holds the mediator between callers and the stores:
// all expense reads and writes flow through ExpenseService.
package services

import (
	"context"
	"fmt"
	"time"

	"pocketledger/internal/amqp"
	"pocketledger/internal/cache"
	"pocketledger/internal/core"
	"pocketledger/internal/log"
)

const statsCacheKey = "stats"

// ExpenseService orchestrates expense operations: validation, the
// repository, the stats cache, and change-event publishing. Event
// publishing is best-effort; a broker failure never fails a write that
// already reached the store.
type ExpenseService struct {
	repo      Repository
	publisher EventPublisher
	stats     *cache.LRU[core.Stats]
	logger    *log.Logger
}

func NewExpenseService(repo Repository, publisher EventPublisher, logger *log.Logger) *ExpenseService {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentService)
	}
	return &ExpenseService{
		repo:      repo,
		publisher: publisher,
		stats:     cache.NewLRU[core.Stats](1, 30*time.Second),
		logger:    logger,
	}
}

// CreateExpense validates and stores a new expense, returning its id.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	id, err := s.repo.Add(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("save expense: %w", err)
	}

	s.stats.Delete(statsCacheKey)
	s.publishEvent(ctx, amqp.OpCreated, id)
	return id, nil
}

// GetExpense returns the expense with the given id, or nil if absent.
func (s *ExpenseService) GetExpense(ctx context.Context, id int64) (*core.Expense, error) {
	return s.repo.GetByID(ctx, id)
}

// ListExpenses returns all expenses, most recent date first.
func (s *ExpenseService) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	return s.repo.GetAll(ctx)
}

// SearchExpenses finds expenses matching the query. An empty query is
// equivalent to listing everything.
func (s *ExpenseService) SearchExpenses(ctx context.Context, query string) ([]core.Expense, error) {
	if query == "" {
		return s.repo.GetAll(ctx)
	}
	return s.repo.Search(ctx, query)
}

// ListExpensesByDateRange returns expenses with from <= date <= to.
func (s *ExpenseService) ListExpensesByDateRange(ctx context.Context, from, to core.Date) ([]core.Expense, error) {
	if err := from.Validate(); err != nil {
		return nil, fmt.Errorf("invalid range start: %w", err)
	}
	if err := to.Validate(); err != nil {
		return nil, fmt.Errorf("invalid range end: %w", err)
	}
	return s.repo.GetByDateRange(ctx, from, to)
}

// UpdateExpense validates and overwrites the mutable fields of an
// existing expense. Updating a missing id is a silent no-op at the store
// level; callers are expected to have checked existence.
func (s *ExpenseService) UpdateExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}

	if err := s.repo.Update(ctx, e); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}

	s.stats.Delete(statsCacheKey)
	s.publishEvent(ctx, amqp.OpUpdated, e.ID)
	return nil
}

// DeleteExpense removes an expense. Absent ids are not an error.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	s.stats.Delete(statsCacheKey)
	s.publishEvent(ctx, amqp.OpDeleted, id)
	return nil
}

// GetStats returns the aggregate statistics, served from a short-lived
// cache that every write invalidates.
func (s *ExpenseService) GetStats(ctx context.Context) (core.Stats, error) {
	if cached, ok := s.stats.Get(statsCacheKey); ok {
		return cached, nil
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return core.Stats{}, err
	}

	s.stats.Set(statsCacheKey, stats)
	return stats, nil
}

// ClearAllExpenses deletes every expense but keeps the schema.
func (s *ExpenseService) ClearAllExpenses(ctx context.Context) error {
	if err := s.repo.ClearAll(ctx); err != nil {
		return err
	}
	s.stats.Delete(statsCacheKey)
	return nil
}

// ResetStore drops and recreates the expense table. Last-resort recovery
// for schema-shape failures detected at read time; all data is lost.
func (s *ExpenseService) ResetStore(ctx context.Context) error {
	if err := s.repo.Reset(ctx); err != nil {
		return err
	}
	s.stats.Delete(statsCacheKey)
	return nil
}

func (s *ExpenseService) publishEvent(ctx context.Context, op amqp.Op, id int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpenseEvent(ctx, op, id); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish expense event",
			log.FieldError, err,
			log.FieldOperation, string(op),
			log.FieldExpenseID, id)
	}
}

// Close releases the underlying repository.
func (s *ExpenseService) Close() error {
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			return fmt.Errorf("close repository: %w", err)
		}
	}
	return nil
}
