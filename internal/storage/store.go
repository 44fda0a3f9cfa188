// Package storage implements the durable expense store over SQLite:
// schema ensure with defensive repair, CRUD, search, date-range reads,
// and aggregate statistics.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"pocketledger/internal/core"
	"pocketledger/internal/log"

	_ "modernc.org/sqlite"
)

// ErrNotInitialized is returned by every operation invoked before the
// schema ensure step has completed.
var ErrNotInitialized = errors.New("expense store not initialized")

// Store is the SQLite-backed expense store. Open it once at startup and
// share the instance by reference; it holds a single database handle for
// the lifetime of the process.
type Store struct {
	db     *sql.DB
	path   string
	logger *log.Logger
	ready  bool
}

// Open opens (creating if necessary) the expense database, applies the
// baseline migrations, and runs the best-effort created_at repair. The
// repair never fails Open; migration and I/O errors do.
func Open(dbPath string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentStorage)
	}

	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{
		db:     db,
		path:   dbPath,
		logger: logger,
	}

	// Best-effort: never blocks startup.
	s.repairCreatedAt(context.Background())
	s.ready = true

	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureReady() error {
	if s == nil || s.db == nil || !s.ready {
		return ErrNotInitialized
	}
	return nil
}

const expenseColumns = `id, title, amount_cents, category, date, description, created_at`

// Add inserts a new expense. The store assigns id and created_at and
// returns the new id.
func (s *Store) Add(ctx context.Context, e core.Expense) (int64, error) {
	if err := s.ensureReady(); err != nil {
		return 0, err
	}

	createdAt := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (title, amount_cents, category, date, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Title, e.Amount.Cents, e.Category, e.Date.String(), e.Description, createdAt)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	s.logger.InfoContext(ctx, "Expense saved",
		log.FieldExpenseID, id,
		log.FieldTitle, e.Title,
		log.FieldAmountCents, e.Amount.Cents,
		log.FieldCategory, e.Category,
		log.FieldDate, e.Date.String())

	return id, nil
}

// GetAll returns every expense ordered by date descending, ties broken by
// id descending.
func (s *Store) GetAll(ctx context.Context) ([]core.Expense, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	return s.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses ORDER BY date DESC, id DESC`)
}

// GetByID returns the expense with the given id, or nil if no such row
// exists. Absence is not an error.
func (s *Store) GetByID(ctx context.Context, id int64) (*core.Expense, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)

	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get expense by id: %w", err)
	}
	return &e, nil
}

// Update overwrites the mutable fields of the expense with the given id.
// id and created_at are untouched. Updating a missing id is a silent
// no-op; callers are expected to have checked existence.
func (s *Store) Update(ctx context.Context, e core.Expense) error {
	if err := s.ensureReady(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET title = ?, amount_cents = ?, category = ?, date = ?, description = ?
		 WHERE id = ?`,
		e.Title, e.Amount.Cents, e.Category, e.Date.String(), e.Description, e.ID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return nil
}

// Delete removes the expense with the given id. Deleting a missing id is
// not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.ensureReady(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	s.logger.InfoContext(ctx, "Expense deleted", log.FieldExpenseID, id)
	return nil
}

// Search returns expenses whose title, description, or category contains
// the query case-insensitively, ordered by date descending.
func (s *Store) Search(ctx context.Context, query string) ([]core.Expense, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}

	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return s.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE lower(title) LIKE ? ESCAPE '\'
		    OR lower(description) LIKE ? ESCAPE '\'
		    OR lower(category) LIKE ? ESCAPE '\'
		 ORDER BY date DESC, id DESC`,
		pattern, pattern, pattern)
}

// GetByDateRange returns expenses with from <= date <= to, ordered by
// date descending. Dates are zero-padded ISO strings, so plain string
// comparison is chronological.
func (s *Store) GetByDateRange(ctx context.Context, from, to core.Date) ([]core.Expense, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	return s.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE date >= ? AND date <= ?
		 ORDER BY date DESC, id DESC`,
		from.String(), to.String())
}

// Stats computes the aggregate statistics: overall total, per-category
// sums (largest first), and per-month sums for the most recent
// core.MonthlyWindow months (most recent first). The three aggregates are
// computed in one logical pass over the table, fanned out across the
// connection pool.
func (s *Store) Stats(ctx context.Context) (core.Stats, error) {
	var stats core.Stats
	if err := s.ensureReady(); err != nil {
		return stats, err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(amount_cents), 0) FROM expenses`).Scan(&stats.Total.Cents)
		if err != nil {
			return fmt.Errorf("total: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT category, SUM(amount_cents) AS total
			 FROM expenses GROUP BY category ORDER BY total DESC, category ASC`)
		if err != nil {
			return fmt.Errorf("category sums: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var ca core.CategoryAmount
			if err := rows.Scan(&ca.Category, &ca.Amount.Cents); err != nil {
				return fmt.Errorf("scan category sum: %w", err)
			}
			stats.ByCategory = append(stats.ByCategory, ca)
		}
		return rows.Err()
	})

	g.Go(func() error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT substr(date, 1, 7) AS month, SUM(amount_cents)
			 FROM expenses GROUP BY month ORDER BY month DESC LIMIT ?`,
			core.MonthlyWindow)
		if err != nil {
			return fmt.Errorf("monthly sums: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var ma core.MonthAmount
			if err := rows.Scan(&ma.Month, &ma.Amount.Cents); err != nil {
				return fmt.Errorf("scan monthly sum: %w", err)
			}
			stats.ByMonth = append(stats.ByMonth, ma)
		}
		return rows.Err()
	})

	if err := g.Wait(); err != nil {
		return core.Stats{}, fmt.Errorf("compute stats: %w", err)
	}
	return stats, nil
}

// ClearAll deletes every expense row but keeps the schema.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM expenses`); err != nil {
		return fmt.Errorf("clear expenses: %w", err)
	}
	s.logger.WarnContext(ctx, "All expenses cleared")
	return nil
}

// Reset drops and recreates the expenses table. Destructive: the caller
// accepts full data loss in exchange for restoring usability after a
// schema-shape failure.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.ensureReady(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS expenses`); err != nil {
		return fmt.Errorf("drop expenses table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createExpensesTable); err != nil {
		return fmt.Errorf("recreate expenses table: %w", err)
	}
	for _, ddl := range createExpensesIndexes {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("recreate index: %w", err)
		}
	}

	s.logger.WarnContext(ctx, "Expenses table reset", log.FieldOperation, log.OpReset)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e         core.Expense
		date      string
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.Title, &e.Amount.Cents, &e.Category, &date, &e.Description, &createdAt); err != nil {
		return core.Expense{}, err
	}

	parsedDate, err := core.ParseDate(date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	e.Date = parsedDate

	// created_at is display-only; tolerate odd legacy values.
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		e.CreatedAt = t
	}

	return e, nil
}

func (s *Store) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

// escapeLike escapes the LIKE wildcards so user queries match literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
