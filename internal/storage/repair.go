package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pocketledger/internal/log"
)

// createExpensesTable is the canonical expenses DDL. It must stay in sync
// with the baseline migration; Reset and the rebuild fallback both use it.
const createExpensesTable = `CREATE TABLE IF NOT EXISTS expenses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	amount_cents INTEGER NOT NULL,
	category TEXT NOT NULL,
	date TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
)`

// createExpensesIndexes recreates the covering indexes. Split out because
// dropping the table drops them too.
var createExpensesIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(date DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_category ON expenses(category)`,
}

// repairCreatedAt makes sure the expenses table carries a created_at
// column. Installations that predate the column have a table the baseline
// migration leaves untouched, so the column is added here: first with an
// in-place ALTER plus backfill, and if that fails by rebuilding the table
// through a holding table, preserving row ids.
//
// The repair is best-effort. It logs failures and returns normally so a
// broken legacy table never blocks startup; the rebuild path is
// multi-statement and not atomic, which is acceptable for a one-time
// migration of last resort.
func (s *Store) repairCreatedAt(ctx context.Context) {
	hasColumn, err := columnExists(s.db, "expenses", "created_at")
	if err != nil {
		s.logger.WarnContext(ctx, "Skipping created_at repair, cannot inspect schema", log.FieldError, err)
		return
	}
	if hasColumn {
		return
	}

	s.logger.InfoContext(ctx, "Legacy expenses table detected, adding created_at column")

	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.addCreatedAtInPlace(ctx, now); err == nil {
		s.logger.InfoContext(ctx, "created_at column added in place")
		return
	} else {
		s.logger.WarnContext(ctx, "In-place column addition failed, rebuilding table", log.FieldError, err)
	}

	if err := s.rebuildWithCreatedAt(ctx, now); err != nil {
		// Best effort only: the store stays usable even if imperfect.
		s.logger.ErrorContext(ctx, "Table rebuild failed, giving up on created_at repair", log.FieldError, err)
	} else {
		s.logger.InfoContext(ctx, "Expenses table rebuilt with created_at column")
	}
}

func (s *Store) addCreatedAtInPlace(ctx context.Context, backfill string) error {
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE expenses ADD COLUMN created_at TEXT`); err != nil {
		return fmt.Errorf("add created_at column: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE expenses SET created_at = ? WHERE created_at IS NULL`, backfill); err != nil {
		return fmt.Errorf("backfill created_at: %w", err)
	}
	return nil
}

// rebuildWithCreatedAt copies all rows into a holding table, recreates the
// expenses table with the full schema, and reinserts every row with its
// original id and a synthesized created_at.
func (s *Store) rebuildWithCreatedAt(ctx context.Context, backfill string) error {
	statements := []struct {
		desc string
		sql  string
		args []any
	}{
		{desc: "drop stale holding table", sql: `DROP TABLE IF EXISTS expenses_backup`},
		{desc: "copy rows to holding table", sql: `CREATE TABLE expenses_backup AS
			SELECT id, title, amount_cents, category, date, description FROM expenses`},
		{desc: "drop legacy table", sql: `DROP TABLE expenses`},
		{desc: "recreate table", sql: createExpensesTable},
		{desc: "reinsert rows", sql: `INSERT INTO expenses (id, title, amount_cents, category, date, description, created_at)
			SELECT id, title, amount_cents, category, date, description, ? FROM expenses_backup`, args: []any{backfill}},
		{desc: "discard holding table", sql: `DROP TABLE expenses_backup`},
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt.sql, stmt.args...); err != nil {
			return fmt.Errorf("%s: %w", stmt.desc, err)
		}
	}
	for _, ddl := range createExpensesIndexes {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("recreate index: %w", err)
		}
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(`PRAGMA table_info(` + table + `)`)
	if err != nil {
		return false, fmt.Errorf("query table info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			typeStr string
			notNull int
			dfltVal sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typeStr, &notNull, &dfltVal, &pk); err != nil {
			return false, fmt.Errorf("scan table info %s: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate table info %s: %w", table, err)
	}
	return false, nil
}
