package services

import (
	"context"

	"pocketledger/internal/amqp"
	"pocketledger/internal/core"
)

// Repository is the expense persistence contract. The SQLite store is
// the production implementation; memstore provides an in-memory fake for
// tests and the memory backend.
type Repository interface {
	Add(ctx context.Context, e core.Expense) (int64, error)
	GetAll(ctx context.Context) ([]core.Expense, error)
	GetByID(ctx context.Context, id int64) (*core.Expense, error)
	Update(ctx context.Context, e core.Expense) error
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, query string) ([]core.Expense, error)
	GetByDateRange(ctx context.Context, from, to core.Date) ([]core.Expense, error)
	Stats(ctx context.Context) (core.Stats, error)
	ClearAll(ctx context.Context) error
	Reset(ctx context.Context) error
	Close() error
}

// EventPublisher emits expense change events. A nil publisher disables
// eventing without changing the write paths.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, op amqp.Op, expenseID int64) error
}
