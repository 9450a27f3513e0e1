package services

import (
	"context"
	"fmt"
	"log/slog"

	"hearth/internal/amqp"
	"hearth/internal/cache"
	"hearth/internal/core"
	"hearth/internal/metrics"
	"hearth/internal/storage"
)

// MemberBalance is one resolved row of a balance report.
type MemberBalance struct {
	UserID string  `json:"user_id"`
	Name   string  `json:"name"`
	Paid   float64 `json:"paid"`
	Net    float64 `json:"net"`
	Member bool    `json:"is_member"`
}

// TransferView is a settlement transfer with names resolved.
type TransferView struct {
	FromID   string  `json:"from_id"`
	FromName string  `json:"from_name"`
	ToID     string  `json:"to_id"`
	ToName   string  `json:"to_name"`
	Amount   float64 `json:"amount"`
}

// BalanceReport is the API view of a group's current balances.
type BalanceReport struct {
	Total          float64         `json:"total"`
	SharePerPerson float64         `json:"share_per_person"`
	Balances       []MemberBalance `json:"balances"`
	Transfers      []TransferView  `json:"transfers"`
}

// SettlementResult summarizes a completed settlement.
type SettlementResult struct {
	Transfers       []TransferView `json:"transfers"`
	ClearedExpenses int64          `json:"cleared_expenses"`
}

// ExpenseService records expenses and computes settlement reports.
// Reports are cached per group and invalidated on any write that can
// change them.
type ExpenseService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
	balances   cache.Cache[BalanceReport]
	metrics    *metrics.Metrics
}

func NewExpenseService(storage *storage.SQLiteRepository, amqpClient *amqp.Client, balances cache.Cache[BalanceReport], m *metrics.Metrics) *ExpenseService {
	return &ExpenseService{
		storage:    storage,
		amqpClient: amqpClient,
		balances:   balances,
		metrics:    m,
	}
}

// RecordExpense validates and stores an expense for the payer's group.
// The group is taken from the payer's membership, not from the request.
func (s *ExpenseService) RecordExpense(ctx context.Context, payerID string, e core.Expense) (*core.Expense, error) {
	membership, err := s.storage.MembershipFor(ctx, payerID)
	if err != nil {
		return nil, err
	}

	e.PaidByID = payerID
	e.GroupID = membership.GroupID
	if err := e.Validate(); err != nil {
		return nil, err
	}

	if err := s.storage.CreateExpense(ctx, &e); err != nil {
		return nil, fmt.Errorf("save expense: %w", err)
	}

	s.InvalidateBalances(e.GroupID)
	if s.metrics != nil {
		s.metrics.ExpensesTotal.Inc()
	}

	event := amqp.NewEvent(amqp.EventExpenseRecorded, e.GroupID)
	event.UserID = payerID
	event.EntityID = e.ID
	event.Amount = e.Amount
	s.publish(ctx, event)

	return &e, nil
}

// ListExpenses returns a page of the caller's group expenses.
func (s *ExpenseService) ListExpenses(ctx context.Context, callerID, groupID string, offset, limit int) ([]core.Expense, error) {
	if _, err := s.storage.MembershipIn(ctx, callerID, groupID); err != nil {
		return nil, err
	}
	return s.storage.ListExpenses(ctx, groupID, offset, limit)
}

// Balances computes who owes whom for the group's open expenses.
func (s *ExpenseService) Balances(ctx context.Context, callerID, groupID string) (*BalanceReport, error) {
	if _, err := s.storage.MembershipIn(ctx, callerID, groupID); err != nil {
		return nil, err
	}

	if s.balances != nil {
		if report, ok := s.balances.Get(groupID); ok {
			return &report, nil
		}
	}

	report, err := s.computeReport(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if s.balances != nil {
		s.balances.Set(groupID, *report)
	}
	return report, nil
}

// SettleGroup computes the final transfers and clears the group's
// expenses so the next period starts from zero.
func (s *ExpenseService) SettleGroup(ctx context.Context, callerID, groupID string) (*SettlementResult, error) {
	if _, err := s.storage.MembershipIn(ctx, callerID, groupID); err != nil {
		return nil, err
	}

	// Snapshot and delete commit together, so the transfers reported
	// here cover exactly the expenses that were cleared.
	expenses, err := s.storage.DrainGroupExpenses(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("clear expenses: %w", err)
	}

	report, err := s.buildReport(ctx, groupID, expenses)
	if err != nil {
		return nil, err
	}

	s.InvalidateBalances(groupID)
	if s.metrics != nil {
		s.metrics.SettlementsRun.Inc()
	}

	event := amqp.NewEvent(amqp.EventGroupSettled, groupID)
	event.UserID = callerID
	event.Amount = report.Total
	s.publish(ctx, event)

	slog.InfoContext(ctx, "Group settled",
		"group_id", groupID,
		"transfers", len(report.Transfers),
		"cleared", len(expenses))

	return &SettlementResult{
		Transfers:       report.Transfers,
		ClearedExpenses: int64(len(expenses)),
	}, nil
}

// InvalidateBalances drops the cached report for a group.
func (s *ExpenseService) InvalidateBalances(groupID string) {
	if s.balances != nil {
		s.balances.Delete(groupID)
	}
}

func (s *ExpenseService) computeReport(ctx context.Context, groupID string) (*BalanceReport, error) {
	expenses, err := s.storage.AllExpenses(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load expenses: %w", err)
	}
	return s.buildReport(ctx, groupID, expenses)
}

// buildReport resolves balances and names for an expense snapshot.
func (s *ExpenseService) buildReport(ctx context.Context, groupID string, expenses []core.Expense) (*BalanceReport, error) {
	memberIDs, err := s.storage.MemberIDs(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}

	balances := core.ComputeBalances(expenses, memberIDs)

	ids := make([]string, 0, len(balances.Positions))
	for _, p := range balances.Positions {
		ids = append(ids, p.UserID)
	}
	names, err := s.storage.UserNames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve names: %w", err)
	}

	report := &BalanceReport{
		Total:          balances.Total,
		SharePerPerson: balances.SharePerPerson,
		Balances:       make([]MemberBalance, 0, len(balances.Positions)),
		Transfers:      make([]TransferView, 0, len(balances.Transfers)),
	}
	for _, p := range balances.Positions {
		report.Balances = append(report.Balances, MemberBalance{
			UserID: p.UserID,
			Name:   displayName(names, p.UserID, p.Member),
			Paid:   p.Paid,
			Net:    p.Net,
			Member: p.Member,
		})
	}
	memberOf := make(map[string]bool, len(balances.Positions))
	for _, p := range balances.Positions {
		memberOf[p.UserID] = p.Member
	}
	for _, tr := range balances.Transfers {
		report.Transfers = append(report.Transfers, TransferView{
			FromID:   tr.FromID,
			FromName: displayName(names, tr.FromID, memberOf[tr.FromID]),
			ToID:     tr.ToID,
			ToName:   displayName(names, tr.ToID, memberOf[tr.ToID]),
			Amount:   tr.Amount,
		})
	}
	return report, nil
}

// displayName labels payers whose account is gone or who left the group.
func displayName(names map[string]string, userID string, member bool) string {
	name, ok := names[userID]
	if !ok {
		return "Unknown"
	}
	if !member {
		return name + " (left)"
	}
	return name
}

func (s *ExpenseService) publish(ctx context.Context, event *amqp.Event) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishEvent(ctx, event); err != nil {
		// Writes already landed, notifications are best effort.
		slog.ErrorContext(ctx, "Failed to publish event",
			"type", event.Type,
			"group_id", event.GroupID,
			"error", err)
	}
}
