// Package memstore is an in-memory expense repository with the same
// semantics as the SQLite store: ordering, search, and statistics all
// match. It backs the memory data backend and substitutes for the real
// store in tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"pocketledger/internal/core"
)

type Store struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]core.Expense
}

func New() *Store {
	return &Store{
		nextID: 1,
		items:  make(map[int64]core.Expense),
	}
}

func (s *Store) Add(_ context.Context, e core.Expense) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = s.nextID
	s.nextID++
	e.CreatedAt = time.Now().UTC()
	s.items[e.ID] = e
	return e.ID, nil
}

func (s *Store) GetAll(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(core.Expense) bool { return true }), nil
}

func (s *Store) GetByID(_ context.Context, id int64) (*core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) Update(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior, ok := s.items[e.ID]
	if !ok {
		// Silent no-op, matching the SQLite store.
		return nil
	}
	e.CreatedAt = prior.CreatedAt
	s.items[e.ID] = e
	return nil
}

func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *Store) Search(_ context.Context, query string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(query)
	return s.sorted(func(e core.Expense) bool {
		return strings.Contains(strings.ToLower(e.Title), q) ||
			strings.Contains(strings.ToLower(e.Description), q) ||
			strings.Contains(strings.ToLower(e.Category), q)
	}), nil
}

func (s *Store) GetByDateRange(_ context.Context, from, to core.Date) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo, hi := from.String(), to.String()
	return s.sorted(func(e core.Expense) bool {
		d := e.Date.String()
		return d >= lo && d <= hi
	}), nil
}

func (s *Store) Stats(_ context.Context) (core.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats core.Stats
	byCategory := make(map[string]int64)
	byMonth := make(map[string]int64)

	for _, e := range s.items {
		stats.Total.Cents += e.Amount.Cents
		byCategory[e.Category] += e.Amount.Cents
		byMonth[e.Date.MonthKey()] += e.Amount.Cents
	}

	for category, cents := range byCategory {
		stats.ByCategory = append(stats.ByCategory, core.CategoryAmount{
			Category: category,
			Amount:   core.Money{Cents: cents},
		})
	}
	sort.Slice(stats.ByCategory, func(i, j int) bool {
		a, b := stats.ByCategory[i], stats.ByCategory[j]
		if a.Amount.Cents != b.Amount.Cents {
			return a.Amount.Cents > b.Amount.Cents
		}
		return a.Category < b.Category
	})

	for month, cents := range byMonth {
		stats.ByMonth = append(stats.ByMonth, core.MonthAmount{
			Month:  month,
			Amount: core.Money{Cents: cents},
		})
	}
	sort.Slice(stats.ByMonth, func(i, j int) bool {
		return stats.ByMonth[i].Month > stats.ByMonth[j].Month
	})
	if len(stats.ByMonth) > core.MonthlyWindow {
		stats.ByMonth = stats.ByMonth[:core.MonthlyWindow]
	}

	return stats, nil
}

func (s *Store) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[int64]core.Expense)
	return nil
}

func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[int64]core.Expense)
	s.nextID = 1
	return nil
}

func (s *Store) Close() error {
	return nil
}

// sorted returns matching expenses ordered by date descending, ties
// broken by id descending. Callers must hold the lock.
func (s *Store) sorted(match func(core.Expense) bool) []core.Expense {
	var out []core.Expense
	for _, e := range s.items {
		if match(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].Date.String(), out[j].Date.String()
		if di != dj {
			return di > dj
		}
		return out[i].ID > out[j].ID
	})
	return out
}
