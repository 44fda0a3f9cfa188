package http

import (
	"net/http"
	"time"

	"pocketledger/internal/core"
	"pocketledger/internal/log"
)

type expenseRequest struct {
	Title       string `json:"title"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

type expenseResponse struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amountCents"`
	Category    string `json:"category"`
	Date        string `json:"date"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

type expenseListResponse struct {
	Expenses []expenseResponse `json:"expenses"`
	Count    int               `json:"count"`
}

type statsEntry struct {
	Label       string `json:"label"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amountCents"`
}

type statsResponse struct {
	Total       string       `json:"total"`
	TotalCents  int64        `json:"totalCents"`
	ByCategory  []statsEntry `json:"byCategory"`
	ByMonth     []statsEntry `json:"byMonth"`
	GeneratedAt string       `json:"generatedAt"`
}

// toExpense converts a request body into a domain expense. The returned
// error is safe to surface to clients.
func (req expenseRequest) toExpense() (core.Expense, error) {
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		return core.Expense{}, core.ErrInvalidAmount
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		Title:       sanitizeInput(req.Title),
		Amount:      core.Money{Cents: cents},
		Category:    sanitizeInput(req.Category),
		Date:        date,
		Description: sanitizeInput(req.Description),
	}, nil
}

func toExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		Title:       e.Title,
		Amount:      e.Amount.String(),
		AmountCents: e.Amount.Cents,
		Category:    e.Category,
		Date:        e.Date.String(),
		Description: e.Description,
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toExpenseListResponse(expenses []core.Expense) expenseListResponse {
	out := expenseListResponse{Expenses: make([]expenseResponse, 0, len(expenses))}
	for _, e := range expenses {
		out.Expenses = append(out.Expenses, toExpenseResponse(e))
	}
	out.Count = len(out.Expenses)
	return out
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	expense, err := req.toExpense()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := expense.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.expenses.CreateExpense(r.Context(), expense)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to create expense",
			log.FieldError, err,
			log.FieldTitle, expense.Title,
			log.FieldAmountCents, expense.Amount.Cents)
		writeError(w, http.StatusInternalServerError, "failed to save expense")
		return
	}

	created, err := s.expenses.GetExpense(r.Context(), id)
	if err != nil || created == nil {
		// Saved but not re-readable; answer with what we know.
		expense.ID = id
		expense.CreatedAt = time.Now().UTC()
		writeJSON(w, http.StatusCreated, toExpenseResponse(expense))
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseResponse(*created))
}

// handleListExpenses serves three query shapes: ?from=&to= for a date
// range, ?q= for text search, and no parameters for everything.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, to := query.Get("from"), query.Get("to")

	var (
		expenses []core.Expense
		err      error
	)
	switch {
	case from != "" || to != "":
		if from == "" || to == "" {
			writeError(w, http.StatusBadRequest, "both from and to are required for a date range")
			return
		}
		fromDate, parseErr := core.ParseDate(from)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
		toDate, parseErr := core.ParseDate(to)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
		expenses, err = s.expenses.ListExpensesByDateRange(r.Context(), fromDate, toDate)
	case query.Get("q") != "":
		expenses, err = s.expenses.SearchExpenses(r.Context(), sanitizeInput(query.Get("q")))
	default:
		expenses, err = s.expenses.ListExpenses(r.Context())
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list expenses", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to list expenses")
		return
	}

	writeJSON(w, http.StatusOK, toExpenseListResponse(expenses))
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	expense, err := s.expenses.GetExpense(r.Context(), id)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to get expense",
			log.FieldError, err, log.FieldExpenseID, id)
		writeError(w, http.StatusInternalServerError, "failed to load expense")
		return
	}
	if expense == nil {
		writeError(w, http.StatusNotFound, "expense not found")
		return
	}

	writeJSON(w, http.StatusOK, toExpenseResponse(*expense))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	expense, err := req.toExpense()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	expense.ID = id
	if err := expense.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	// The store treats updates of missing rows as no-ops; the API
	// reports them as 404 instead.
	existing, err := s.expenses.GetExpense(r.Context(), id)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to load expense for update",
			log.FieldError, err, log.FieldExpenseID, id)
		writeError(w, http.StatusInternalServerError, "failed to load expense")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "expense not found")
		return
	}

	if err := s.expenses.UpdateExpense(r.Context(), expense); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to update expense",
			log.FieldError, err, log.FieldExpenseID, id)
		writeError(w, http.StatusInternalServerError, "failed to update expense")
		return
	}

	expense.CreatedAt = existing.CreatedAt
	writeJSON(w, http.StatusOK, toExpenseResponse(expense))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.expenses.DeleteExpense(r.Context(), id); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to delete expense",
			log.FieldError, err, log.FieldExpenseID, id)
		writeError(w, http.StatusInternalServerError, "failed to delete expense")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearExpenses(w http.ResponseWriter, r *http.Request) {
	if err := s.expenses.ClearAllExpenses(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to clear expenses", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to clear expenses")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.expenses.GetStats(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to compute stats", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	resp := statsResponse{
		Total:       stats.Total.String(),
		TotalCents:  stats.Total.Cents,
		ByCategory:  make([]statsEntry, 0, len(stats.ByCategory)),
		ByMonth:     make([]statsEntry, 0, len(stats.ByMonth)),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, c := range stats.ByCategory {
		resp.ByCategory = append(resp.ByCategory, statsEntry{
			Label:       c.Category,
			Amount:      c.Amount.String(),
			AmountCents: c.Amount.Cents,
		})
	}
	for _, m := range stats.ByMonth {
		resp.ByMonth = append(resp.ByMonth, statsEntry{
			Label:       m.Month,
			Amount:      m.Amount.String(),
			AmountCents: m.Amount.Cents,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
