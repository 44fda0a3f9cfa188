package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pocketledger/internal/amqp"
	"pocketledger/internal/core"
	"pocketledger/internal/log"
	"pocketledger/internal/memstore"
)

type recordedEvent struct {
	op amqp.Op
	id int64
}

// recordingPublisher captures published events, optionally failing every
// publish to exercise the best-effort path.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	fail   bool
}

func (p *recordingPublisher) PublishExpenseEvent(_ context.Context, op amqp.Op, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, recordedEvent{op: op, id: id})
	return nil
}

func (p *recordingPublisher) recorded() []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedEvent(nil), p.events...)
}

func newTestService(publisher EventPublisher) *ExpenseService {
	logger := log.New(log.Config{Level: slog.LevelError, Component: "test"})
	return NewExpenseService(memstore.New(), publisher, logger)
}

func validExpense(title string, cents int64, date string) core.Expense {
	d, _ := core.ParseDate(date)
	return core.Expense{
		Title:    title,
		Amount:   core.Money{Cents: cents},
		Category: "Food",
		Date:     d,
	}
}

func TestCreateExpenseRejectsInvalid(t *testing.T) {
	svc := newTestService(nil)

	_, err := svc.CreateExpense(context.Background(), core.Expense{
		Amount:   core.Money{Cents: 100},
		Category: "Food",
		Date:     core.NewDate(2025, 8, 1),
	})
	assert.ErrorIs(t, err, core.ErrEmptyTitle)

	_, err = svc.CreateExpense(context.Background(), validExpense("Coffee", 0, "2025-08-01"))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	all, err := svc.ListExpenses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all, "rejected expenses must not reach the store")
}

func TestCreateExpensePublishesEvent(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(pub)

	id, err := svc.CreateExpense(context.Background(), validExpense("Coffee", 350, "2025-08-01"))
	require.NoError(t, err)

	events := pub.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, amqp.OpCreated, events[0].op)
	assert.Equal(t, id, events[0].id)
}

func TestPublisherFailureDoesNotFailWrites(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	svc := newTestService(pub)

	id, err := svc.CreateExpense(context.Background(), validExpense("Coffee", 350, "2025-08-01"))
	require.NoError(t, err)

	got, err := svc.GetExpense(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Coffee", got.Title)
}

func TestUpdateAndDeletePublishEvents(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := newTestService(pub)

	id, err := svc.CreateExpense(ctx, validExpense("Coffee", 350, "2025-08-01"))
	require.NoError(t, err)

	updated := validExpense("Espresso", 400, "2025-08-02")
	updated.ID = id
	require.NoError(t, svc.UpdateExpense(ctx, updated))
	require.NoError(t, svc.DeleteExpense(ctx, id))

	events := pub.recorded()
	require.Len(t, events, 3)
	assert.Equal(t, amqp.OpUpdated, events[1].op)
	assert.Equal(t, amqp.OpDeleted, events[2].op)
}

func TestSearchEmptyQueryListsEverything(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)

	_, err := svc.CreateExpense(ctx, validExpense("Coffee", 350, "2025-08-01"))
	require.NoError(t, err)
	_, err = svc.CreateExpense(ctx, validExpense("Lunch", 1200, "2025-08-02"))
	require.NoError(t, err)

	got, err := svc.SearchExpenses(ctx, "")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = svc.SearchExpenses(ctx, "lun")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Lunch", got[0].Title)
}

func TestListByDateRangeValidatesBounds(t *testing.T) {
	svc := newTestService(nil)

	_, err := svc.ListExpensesByDateRange(context.Background(), core.Date{}, core.NewDate(2025, 8, 31))
	assert.Error(t, err)
}

func TestStatsCacheInvalidatedByWrites(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)

	_, err := svc.CreateExpense(ctx, validExpense("Coffee", 350, "2025-08-01"))
	require.NoError(t, err)

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(350), stats.Total.Cents)

	// A second read within the TTL is served from cache.
	stats, err = svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(350), stats.Total.Cents)

	_, err = svc.CreateExpense(ctx, validExpense("Lunch", 1200, "2025-08-02"))
	require.NoError(t, err)

	stats, err = svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1550), stats.Total.Cents, "create must invalidate the stats cache")
}

func TestClearAllInvalidatesStatsCache(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)

	_, err := svc.CreateExpense(ctx, validExpense("Coffee", 350, "2025-08-01"))
	require.NoError(t, err)

	_, err = svc.GetStats(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.ClearAllExpenses(ctx))

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total.Cents)
	assert.Empty(t, stats.ByCategory)
}
