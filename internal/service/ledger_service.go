// Package service implements the public operations of the ledger engine:
// expense creation with splits, balance queries, settlement
// recommendation, and settlement recording. It orchestrates the pure
// calculator over the storage contract; the surrounding API layer calls
// these methods directly.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tallyhq/tally/internal/calculator"
	"github.com/tallyhq/tally/internal/metrics"
	"github.com/tallyhq/tally/internal/models"
	"github.com/tallyhq/tally/internal/storage"
)

// LedgerService is the engine facade. Stateless between calls: every
// method runs to completion inside one caller-initiated unit of work.
type LedgerService struct {
	store storage.Store
}

// NewLedgerService creates a LedgerService with the given storage backend.
func NewLedgerService(store storage.Store) *LedgerService {
	return &LedgerService{store: store}
}

// observe returns a timer that records the operation's duration when
// called.
func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// ExpenseInput carries everything needed to create or update an expense.
type ExpenseInput struct {
	GroupID     string
	PayerID     string
	Description string
	Amount      int64 // minor currency units
	Currency    string

	// SplitMethod and Participants drive the split calculator. The
	// payer may be listed as a participant; their own share is never
	// persisted as a split.
	SplitMethod  models.SplitMethod
	Participants []string
	Params       calculator.SplitParams
}

func (in *ExpenseInput) validate() error {
	if in.PayerID == "" {
		return models.Validationf("payer required")
	}
	if in.Currency == "" {
		return models.Validationf("currency required")
	}
	return nil
}

// ComputeSplits previews the per-participant shares for an expense
// without persisting anything. The returned shares sum exactly to total.
func (s *LedgerService) ComputeSplits(total int64, method models.SplitMethod, participants []string, params calculator.SplitParams) ([]calculator.Share, error) {
	defer observe("compute_splits")()
	shares, err := calculator.ComputeSplits(total, method, participants, params)
	if err != nil {
		slog.Warn("ComputeSplits rejected", "method", method, "total", total, "error", err)
		return nil, err
	}
	return shares, nil
}

// CreateExpense computes the splits for an expense and persists both in
// one unit of work. The splits of the stored expense cover every
// participant except the payer, who does not owe themselves.
func (s *LedgerService) CreateExpense(ctx context.Context, in ExpenseInput) (*models.Expense, []models.ExpenseSplit, error) {
	defer observe("create_expense")()

	if err := in.validate(); err != nil {
		return nil, nil, err
	}
	shares, err := calculator.ComputeSplits(in.Amount, in.SplitMethod, in.Participants, in.Params)
	if err != nil {
		slog.Warn("CreateExpense split computation rejected", "payer_id", in.PayerID, "error", err)
		return nil, nil, err
	}

	expense := &models.Expense{
		GroupID:     in.GroupID,
		PayerID:     in.PayerID,
		Description: in.Description,
		Amount:      in.Amount,
		Currency:    in.Currency,
		SplitMethod: in.SplitMethod,
	}
	splits := splitsFromShares(shares, in.PayerID)
	// Nothing to settle when the payer is the only participant.
	expense.Settled = len(splits) == 0

	if err := s.store.CreateExpense(ctx, expense, splits); err != nil {
		slog.Error("CreateExpense failed", "payer_id", in.PayerID, "error", err)
		return nil, nil, err
	}

	metrics.ExpensesCreated.Inc()
	slog.Info("expense created",
		"expense_id", expense.ID,
		"group_id", expense.GroupID,
		"payer_id", expense.PayerID,
		"amount", expense.Amount,
		"splits", len(splits),
	)
	return expense, splits, nil
}

// UpdateExpense regenerates the splits from the new input and swaps
// expense and splits atomically. An expense with any settled split can no
// longer be edited: the settlement already discharged part of it.
func (s *LedgerService) UpdateExpense(ctx context.Context, expenseID string, in ExpenseInput) (*models.Expense, []models.ExpenseSplit, error) {
	defer observe("update_expense")()

	if err := in.validate(); err != nil {
		return nil, nil, err
	}
	existing, _, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, nil, err
	}

	shares, err := calculator.ComputeSplits(in.Amount, in.SplitMethod, in.Participants, in.Params)
	if err != nil {
		slog.Warn("UpdateExpense split computation rejected", "expense_id", expenseID, "error", err)
		return nil, nil, err
	}

	expense := &models.Expense{
		ID:          existing.ID,
		GroupID:     in.GroupID,
		PayerID:     in.PayerID,
		Description: in.Description,
		Amount:      in.Amount,
		Currency:    in.Currency,
		SplitMethod: in.SplitMethod,
		CreatedAt:   existing.CreatedAt,
	}
	splits := splitsFromShares(shares, in.PayerID)

	if err := s.store.ReplaceExpense(ctx, expense, splits); err != nil {
		slog.Error("UpdateExpense failed", "expense_id", expenseID, "error", err)
		return nil, nil, err
	}

	slog.Info("expense updated", "expense_id", expense.ID, "amount", expense.Amount, "splits", len(splits))
	return expense, splits, nil
}

// DeleteExpense soft-deletes an expense; the splits cascade out of every
// balance computation. Refused once any split is settled, since removing
// the obligation would orphan the settlement that paid it.
func (s *LedgerService) DeleteExpense(ctx context.Context, expenseID string) error {
	defer observe("delete_expense")()

	if err := s.store.SoftDeleteExpense(ctx, expenseID); err != nil {
		slog.Error("DeleteExpense failed", "expense_id", expenseID, "error", err)
		return err
	}
	slog.Info("expense deleted", "expense_id", expenseID)
	return nil
}

// GetExpense returns an expense and its splits.
func (s *LedgerService) GetExpense(ctx context.Context, expenseID string) (*models.Expense, []models.ExpenseSplit, error) {
	return s.store.GetExpense(ctx, expenseID)
}

// ListGroupExpenses returns a group's non-deleted expenses, newest first.
func (s *LedgerService) ListGroupExpenses(ctx context.Context, groupID string) ([]models.Expense, error) {
	expenses, _, err := s.store.ListGroupExpenses(ctx, groupID)
	return expenses, err
}

// GetGroupBalances reduces a group's committed records to per-user net
// balances. Read-only and safe to call concurrently; the nets always sum
// to zero, which is asserted before returning.
func (s *LedgerService) GetGroupBalances(ctx context.Context, groupID string) ([]models.Balance, error) {
	defer observe("group_balances")()

	expenses, splits, err := s.store.ListGroupExpenses(ctx, groupID)
	if err != nil {
		return nil, err
	}
	settlements, err := s.store.ListGroupSettlements(ctx, groupID)
	if err != nil {
		return nil, err
	}

	balances := calculator.ReduceBalances(expenses, splits, settlements)

	var sum int64
	for _, b := range balances {
		sum += b.Net
	}
	if sum != 0 {
		metrics.ConsistencyErrors.Inc()
		err := models.Inconsistencyf("group %s balances sum to %d, want 0", groupID, sum)
		slog.Error("balance invariant violated", "group_id", groupID, "sum", sum)
		return nil, err
	}
	return balances, nil
}

// GetPairwiseBalance nets the obligations between two users into one
// signed amount: positive means userB owes userA. An empty groupID spans
// all scopes.
func (s *LedgerService) GetPairwiseBalance(ctx context.Context, userA, userB, groupID string) (int64, error) {
	defer observe("pairwise_balance")()

	if userA == userB {
		return 0, models.Validationf("pairwise balance requires two distinct users")
	}
	expenses, splits, settlements, err := s.store.ListPairRecords(ctx, userA, userB, groupID)
	if err != nil {
		return 0, err
	}
	return calculator.ReducePairBalance(userA, userB, expenses, splits, settlements), nil
}

// RecommendSettlements computes a group's balances and turns them into an
// ordered payment plan that zeroes every balance. Advisory: the plan
// holds no locks, and applying a recommendation re-validates through the
// recorder's conditional update.
func (s *LedgerService) RecommendSettlements(ctx context.Context, groupID string) ([]models.Transfer, error) {
	defer observe("recommend_settlements")()

	balances, err := s.GetGroupBalances(ctx, groupID)
	if err != nil {
		return nil, err
	}
	transfers, err := calculator.RecommendSettlements(balances)
	if err != nil {
		var ice *models.InternalConsistencyError
		if errors.As(err, &ice) {
			metrics.ConsistencyErrors.Inc()
			slog.Error("settlement recommendation refused", "group_id", groupID, "error", err)
		}
		return nil, err
	}
	return transfers, nil
}

// ListGroupSettlements returns a group's settlements, newest first.
func (s *LedgerService) ListGroupSettlements(ctx context.Context, groupID string) ([]models.Settlement, error) {
	return s.store.ListGroupSettlements(ctx, groupID)
}

// GetUserSummary reports a user's overall position across all scopes:
// per-counterparty nets and signed totals.
func (s *LedgerService) GetUserSummary(ctx context.Context, userID string) (*models.UserSummary, error) {
	defer observe("user_summary")()

	if userID == "" {
		return nil, models.Validationf("user required")
	}
	details, err := s.store.ListUserSplitDetails(ctx, userID)
	if err != nil {
		return nil, err
	}
	settlements, err := s.store.ListUserSettlements(ctx, userID)
	if err != nil {
		return nil, err
	}
	return summarize(userID, details, settlements), nil
}
