package core

import (
	"errors"
	"strings"
	"time"
)

const (
	// ISODate is the storage layout for expense dates.
	ISODate = "2006-01-02"

	// ISOMonth is the layout for monthly aggregation keys.
	ISOMonth = "2006-01"
)

type (
	// Date is a calendar date with day precision. It marshals to and from
	// the zero-padded ISO form (YYYY-MM-DD), which is also how dates are
	// persisted, so lexicographic order matches chronological order.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Expense is one user-entered spending transaction. ID is the sole
	// identity of a record; everything else is mutable via update.
	Expense struct {
		ID          int64
		Title       string
		Amount      Money
		Category    string
		Date        Date
		Description string
		CreatedAt   time.Time
	}
)

// SuggestedCategories is the curated category list offered to callers.
// It is advisory only: any non-empty string is a valid category.
var SuggestedCategories = []string{
	"Food",
	"Transportation",
	"Entertainment",
	"Shopping",
	"Bills",
	"Health",
	"Education",
	"Travel",
	"Other",
}

var (
	ErrEmptyTitle    = errors.New("empty title")
	ErrEmptyCategory = errors.New("empty category")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
)

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a zero-padded ISO date string (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(ISODate, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String returns the ISO form used for storage and ordering.
func (d Date) String() string {
	return d.Format(ISODate)
}

// MonthKey returns the YYYY-MM aggregation key for this date.
func (d Date) MonthKey() string {
	return d.Format(ISOMonth)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the caller-supplied fields of an expense. ID and
// CreatedAt are store-assigned and not validated here.
func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(e.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(e.Description) > 500 {
		return errors.New("description too long (max 500 characters)")
	}
	return nil
}
