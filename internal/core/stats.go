package core

// MonthlyWindow caps how many calendar months the monthly breakdown
// reports, counted back from the most recent month with data.
const MonthlyWindow = 12

// CategoryAmount is an amount aggregated by category name.
type CategoryAmount struct {
	Category string
	Amount   Money
}

// MonthAmount is an amount aggregated by calendar month (YYYY-MM key).
type MonthAmount struct {
	Month  string
	Amount Money
}

// Stats is the aggregate view over all expense records: the overall
// total, per-category sums ordered by sum descending, and per-month sums
// for the most recent MonthlyWindow months ordered by month descending.
type Stats struct {
	Total      Money
	ByCategory []CategoryAmount
	ByMonth    []MonthAmount
}
