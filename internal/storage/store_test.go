package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pocketledger/internal/core"
	"pocketledger/internal/log"
)

func testLogger() *log.Logger {
	return log.New(log.Config{Level: slog.LevelError, Component: "test"})
}

// StoreTestSuite exercises the SQLite expense store against a fresh
// database file per test.
type StoreTestSuite struct {
	suite.Suite
	store *Store
	path  string
}

func (s *StoreTestSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "expenses.db")
	store, err := Open(s.path, nil)
	require.NoError(s.T(), err, "failed to open test store")
	s.store = store
}

func (s *StoreTestSuite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *StoreTestSuite) mustAdd(title string, cents int64, category, date string) int64 {
	d, err := core.ParseDate(date)
	require.NoError(s.T(), err)
	id, err := s.store.Add(context.Background(), core.Expense{
		Title:    title,
		Amount:   core.Money{Cents: cents},
		Category: category,
		Date:     d,
	})
	require.NoError(s.T(), err)
	return id
}

func (s *StoreTestSuite) TestAddThenGetByID() {
	ctx := context.Background()
	d, _ := core.ParseDate("2025-08-18")

	id, err := s.store.Add(ctx, core.Expense{
		Title:       "Groceries",
		Amount:      core.Money{Cents: 8550},
		Category:    "Food",
		Date:        d,
		Description: "weekly shop",
	})
	require.NoError(s.T(), err)
	require.Positive(s.T(), id)

	got, err := s.store.GetByID(ctx, id)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), got)

	assert.Equal(s.T(), id, got.ID)
	assert.Equal(s.T(), "Groceries", got.Title)
	assert.Equal(s.T(), int64(8550), got.Amount.Cents)
	assert.Equal(s.T(), "Food", got.Category)
	assert.Equal(s.T(), "2025-08-18", got.Date.String())
	assert.Equal(s.T(), "weekly shop", got.Description)
	assert.False(s.T(), got.CreatedAt.IsZero(), "created_at should be assigned by the store")
}

func (s *StoreTestSuite) TestGetByIDMissingIsNotAnError() {
	got, err := s.store.GetByID(context.Background(), 9999)
	require.NoError(s.T(), err)
	assert.Nil(s.T(), got)
}

func (s *StoreTestSuite) TestIDsAreMonotonic() {
	first := s.mustAdd("a", 100, "Food", "2025-01-01")
	second := s.mustAdd("b", 200, "Food", "2025-01-01")
	assert.Greater(s.T(), second, first)
}

func (s *StoreTestSuite) TestGetAllOrdering() {
	// Inserted out of order on purpose; ties on date break by id descending.
	s.mustAdd("oldest", 100, "Food", "2025-08-16")
	s.mustAdd("tie-early", 200, "Food", "2025-08-18")
	s.mustAdd("newest-insert", 300, "Food", "2025-08-17")
	s.mustAdd("tie-late", 400, "Food", "2025-08-18")

	all, err := s.store.GetAll(context.Background())
	require.NoError(s.T(), err)
	require.Len(s.T(), all, 4)

	titles := []string{all[0].Title, all[1].Title, all[2].Title, all[3].Title}
	assert.Equal(s.T(), []string{"tie-late", "tie-early", "newest-insert", "oldest"}, titles)
}

func (s *StoreTestSuite) TestUpdatePreservesIDAndCreatedAt() {
	ctx := context.Background()
	id := s.mustAdd("Lunch", 1200, "Food", "2025-08-10")

	before, err := s.store.GetByID(ctx, id)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), before)

	d, _ := core.ParseDate("2025-08-11")
	err = s.store.Update(ctx, core.Expense{
		ID:          id,
		Title:       "Dinner",
		Amount:      core.Money{Cents: 2400},
		Category:    "Entertainment",
		Date:        d,
		Description: "changed plans",
	})
	require.NoError(s.T(), err)

	after, err := s.store.GetByID(ctx, id)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), after)

	assert.Equal(s.T(), "Dinner", after.Title)
	assert.Equal(s.T(), int64(2400), after.Amount.Cents)
	assert.Equal(s.T(), "Entertainment", after.Category)
	assert.Equal(s.T(), "2025-08-11", after.Date.String())
	assert.Equal(s.T(), "changed plans", after.Description)
	assert.Equal(s.T(), before.ID, after.ID)
	assert.True(s.T(), before.CreatedAt.Equal(after.CreatedAt), "created_at must not change on update")
}

func (s *StoreTestSuite) TestUpdateMissingIDIsSilentNoOp() {
	d, _ := core.ParseDate("2025-08-11")
	err := s.store.Update(context.Background(), core.Expense{
		ID:       424242,
		Title:    "Ghost",
		Amount:   core.Money{Cents: 100},
		Category: "Other",
		Date:     d,
	})
	assert.NoError(s.T(), err)
}

func (s *StoreTestSuite) TestDelete() {
	ctx := context.Background()
	id := s.mustAdd("Coffee", 450, "Food", "2025-08-12")

	require.NoError(s.T(), s.store.Delete(ctx, id))

	got, err := s.store.GetByID(ctx, id)
	require.NoError(s.T(), err)
	assert.Nil(s.T(), got)

	// Absent id is not an error.
	assert.NoError(s.T(), s.store.Delete(ctx, id))
}

func (s *StoreTestSuite) TestSearch() {
	ctx := context.Background()
	s.mustAdd("Grocery run", 100, "Food", "2025-08-10")
	s.mustAdd("Cinema", 200, "Entertainment", "2025-08-11")
	id, err := s.store.Add(ctx, core.Expense{
		Title:       "Misc",
		Amount:      core.Money{Cents: 300},
		Category:    "Other",
		Date:        core.NewDate(2025, 8, 12),
		Description: "birthday GROCERIES",
	})
	require.NoError(s.T(), err)
	_ = id

	s.Run("case-insensitive across fields", func() {
		got, err := s.store.Search(ctx, "grocer")
		require.NoError(s.T(), err)
		require.Len(s.T(), got, 2)
		// Ordered by date descending.
		assert.Equal(s.T(), "Misc", got[0].Title)
		assert.Equal(s.T(), "Grocery run", got[1].Title)
	})

	s.Run("matches category", func() {
		got, err := s.store.Search(ctx, "entertain")
		require.NoError(s.T(), err)
		require.Len(s.T(), got, 1)
		assert.Equal(s.T(), "Cinema", got[0].Title)
	})

	s.Run("no match", func() {
		got, err := s.store.Search(ctx, "zzz")
		require.NoError(s.T(), err)
		assert.Empty(s.T(), got)
	})

	s.Run("like wildcards are literal", func() {
		got, err := s.store.Search(ctx, "%")
		require.NoError(s.T(), err)
		assert.Empty(s.T(), got)
	})
}

func (s *StoreTestSuite) TestGetByDateRangeInclusive() {
	ctx := context.Background()
	s.mustAdd("before", 100, "Food", "2025-07-31")
	s.mustAdd("start", 200, "Food", "2025-08-01")
	s.mustAdd("middle", 300, "Food", "2025-08-15")
	s.mustAdd("end", 400, "Food", "2025-08-31")
	s.mustAdd("after", 500, "Food", "2025-09-01")

	from, _ := core.ParseDate("2025-08-01")
	to, _ := core.ParseDate("2025-08-31")

	got, err := s.store.GetByDateRange(ctx, from, to)
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 3)
	assert.Equal(s.T(), "end", got[0].Title)
	assert.Equal(s.T(), "middle", got[1].Title)
	assert.Equal(s.T(), "start", got[2].Title)
}

func (s *StoreTestSuite) TestStats() {
	ctx := context.Background()

	s.Run("empty store", func() {
		stats, err := s.store.Stats(ctx)
		require.NoError(s.T(), err)
		assert.Zero(s.T(), stats.Total.Cents)
		assert.Empty(s.T(), stats.ByCategory)
		assert.Empty(s.T(), stats.ByMonth)
	})

	s.mustAdd("Groceries", 8550, "Food", "2025-08-18")
	s.mustAdd("Bus pass", 4500, "Transportation", "2025-08-17")
	s.mustAdd("Cinema", 2800, "Entertainment", "2025-08-16")

	stats, err := s.store.Stats(ctx)
	require.NoError(s.T(), err)

	assert.Equal(s.T(), int64(15850), stats.Total.Cents)

	require.Len(s.T(), stats.ByCategory, 3)
	assert.Equal(s.T(), core.CategoryAmount{Category: "Food", Amount: core.Money{Cents: 8550}}, stats.ByCategory[0])
	assert.Equal(s.T(), core.CategoryAmount{Category: "Transportation", Amount: core.Money{Cents: 4500}}, stats.ByCategory[1])
	assert.Equal(s.T(), core.CategoryAmount{Category: "Entertainment", Amount: core.Money{Cents: 2800}}, stats.ByCategory[2])

	// Category sums always add up to the total.
	var sum int64
	for _, ca := range stats.ByCategory {
		sum += ca.Amount.Cents
	}
	assert.Equal(s.T(), stats.Total.Cents, sum)

	require.Len(s.T(), stats.ByMonth, 1)
	assert.Equal(s.T(), core.MonthAmount{Month: "2025-08", Amount: core.Money{Cents: 15850}}, stats.ByMonth[0])
}

func (s *StoreTestSuite) TestStatsMonthlyWindow() {
	ctx := context.Background()

	// 15 distinct months; only the most recent 12 should be reported.
	months := []string{
		"2024-04", "2024-05", "2024-06", "2024-07", "2024-08", "2024-09",
		"2024-10", "2024-11", "2024-12", "2025-01", "2025-02", "2025-03",
		"2025-04", "2025-05", "2025-06",
	}
	for _, m := range months {
		s.mustAdd("m-"+m, 100, "Other", m+"-15")
	}

	stats, err := s.store.Stats(ctx)
	require.NoError(s.T(), err)

	require.Len(s.T(), stats.ByMonth, core.MonthlyWindow)
	assert.Equal(s.T(), "2025-06", stats.ByMonth[0].Month)
	assert.Equal(s.T(), "2024-07", stats.ByMonth[len(stats.ByMonth)-1].Month)
	for i := 1; i < len(stats.ByMonth); i++ {
		assert.Less(s.T(), stats.ByMonth[i].Month, stats.ByMonth[i-1].Month, "months must be sorted descending")
	}
}

func (s *StoreTestSuite) TestClearAllKeepsSchema() {
	ctx := context.Background()
	s.mustAdd("a", 100, "Food", "2025-08-01")
	s.mustAdd("b", 200, "Food", "2025-08-02")

	require.NoError(s.T(), s.store.ClearAll(ctx))

	all, err := s.store.GetAll(ctx)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), all)

	// Schema survives: adds still work.
	s.mustAdd("c", 300, "Food", "2025-08-03")
}

func (s *StoreTestSuite) TestReset() {
	ctx := context.Background()
	s.mustAdd("doomed", 100, "Food", "2025-08-01")

	require.NoError(s.T(), s.store.Reset(ctx))

	all, err := s.store.GetAll(ctx)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), all)

	// The recreated table is fully usable.
	id := s.mustAdd("fresh", 200, "Food", "2025-08-02")
	assert.Positive(s.T(), id)
}

func (s *StoreTestSuite) TestUninitializedStore() {
	ctx := context.Background()
	uninit := &Store{}

	_, err := uninit.Add(ctx, core.Expense{})
	assert.ErrorIs(s.T(), err, ErrNotInitialized)

	_, err = uninit.GetAll(ctx)
	assert.ErrorIs(s.T(), err, ErrNotInitialized)

	_, err = uninit.Stats(ctx)
	assert.ErrorIs(s.T(), err, ErrNotInitialized)

	assert.ErrorIs(s.T(), uninit.Delete(ctx, 1), ErrNotInitialized)
	assert.ErrorIs(s.T(), uninit.Reset(ctx), ErrNotInitialized)
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

// openLegacyDB creates a database whose expenses table predates the
// created_at column, bypassing the migration machinery.
func openLegacyDB(t *testing.T, path string) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE expenses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		category TEXT NOT NULL,
		date TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO expenses (id, title, amount_cents, category, date, description) VALUES
		(7, 'Legacy lunch', 1200, 'Food', '2024-05-01', ''),
		(9, 'Legacy taxi', 2300, 'Transportation', '2024-05-02', 'airport')`)
	require.NoError(t, err)
}

func TestRepairAddsCreatedAtToLegacyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	openLegacyDB(t, path)

	store, err := Open(path, nil)
	require.NoError(t, err)
	defer store.Close()

	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2, "repair must not lose rows")

	// Original ids preserved; created_at backfilled.
	assert.Equal(t, int64(9), all[0].ID)
	assert.Equal(t, int64(7), all[1].ID)
	for _, e := range all {
		assert.False(t, e.CreatedAt.IsZero(), "created_at should be backfilled for %q", e.Title)
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expenses.db")

	store, err := Open(path, nil)
	require.NoError(t, err)
	id, err := store.Add(context.Background(), core.Expense{
		Title:    "Persisted",
		Amount:   core.Money{Cents: 500},
		Category: "Other",
		Date:     core.NewDate(2025, 1, 1),
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Re-opening runs ensure again on an already-correct table.
	store, err = Open(path, nil)
	require.NoError(t, err)
	defer store.Close()

	has, err := columnExists(store.db, "expenses", "created_at")
	require.NoError(t, err)
	assert.True(t, has)

	got, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, got, "rows must survive a second ensure")
	assert.Equal(t, "Persisted", got.Title)
}

func TestRebuildFallbackPreservesRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	openLegacyDB(t, path)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)

	store := &Store{db: db, path: path, logger: testLogger()}

	// Drive the reconstruction path directly, as if the ALTER had failed.
	require.NoError(t, store.rebuildWithCreatedAt(context.Background(), "2025-08-30T00:00:00Z"))
	store.ready = true

	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(9), all[0].ID)
	assert.Equal(t, "Legacy taxi", all[0].Title)
	assert.Equal(t, int64(7), all[1].ID)
	assert.Equal(t, "Legacy lunch", all[1].Title)
	for _, e := range all {
		assert.Equal(t, "2025-08-30T00:00:00Z", e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
	}

	// Holding table is discarded.
	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='expenses_backup'`).Scan(&name)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, db.Close())
}
