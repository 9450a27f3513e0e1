package http

import (
	"net/http"

	"hearth/internal/core"
)

type recordExpenseRequest struct {
	Description    string  `json:"description"`
	Amount         float64 `json:"amount"`
	Category       string  `json:"category"`
	IsSubscription bool    `json:"is_subscription"`
	BillingDay     int     `json:"billing_day"`
}

func (s *Server) handleRecordExpense(w http.ResponseWriter, r *http.Request) {
	var req recordExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	expense, err := s.expenses.RecordExpense(r.Context(), callerID(r.Context()), core.Expense{
		Description:    req.Description,
		Amount:         req.Amount,
		Category:       req.Category,
		IsSubscription: req.IsSubscription,
		BillingDay:     req.BillingDay,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	offset, limit := parsePage(r)
	expenses, err := s.expenses.ListExpenses(r.Context(), callerID(r.Context()), r.PathValue("id"), offset, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	report, err := s.expenses.Balances(r.Context(), callerID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	result, err := s.expenses.SettleGroup(r.Context(), callerID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
