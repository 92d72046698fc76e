// Package storage defines the persistence contract the ledger engine
// consumes: plain reads, internally-atomic writes, and an explicit unit
// of work with a conditional-update primitive for settlement recording.
package storage

import (
	"context"

	"github.com/tallyhq/tally/internal/models"
)

// SplitDetail is an expense split joined with the fields of its parent
// expense that settlement validation needs.
type SplitDetail struct {
	Split models.ExpenseSplit

	ExpensePayerID  string
	ExpenseGroupID  string
	ExpenseCurrency string
	ExpenseDeleted  bool
}

// Store is the persistence interface for the ledger engine. This
// abstraction keeps the engine storage-agnostic; implementations must
// make each mutating method atomic and expose read-committed visibility
// (a half-written expense+splits group is never observable).
type Store interface {
	// CreateExpense persists an expense and its splits in one unit of
	// work. Missing IDs and timestamps are populated.
	CreateExpense(ctx context.Context, expense *models.Expense, splits []models.ExpenseSplit) error

	// GetExpense returns an expense and its splits. Soft-deleted
	// expenses are reported as not found.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, []models.ExpenseSplit, error)

	// ReplaceExpense updates the expense row and swaps its splits for
	// the given set, atomically. Fails with ConflictError when any
	// existing split is settled, checked in the same transaction as
	// the swap.
	ReplaceExpense(ctx context.Context, expense *models.Expense, splits []models.ExpenseSplit) error

	// SoftDeleteExpense marks an expense deleted. Its splits cascade:
	// they stay stored but vanish from every read below. Fails with
	// ConflictError when any split is settled.
	SoftDeleteExpense(ctx context.Context, expenseID string) error

	// ListGroupExpenses returns the non-deleted expenses of a group,
	// newest first, along with all of their splits.
	ListGroupExpenses(ctx context.Context, groupID string) ([]models.Expense, []models.ExpenseSplit, error)

	// ListPairRecords returns the non-deleted expenses, their splits,
	// and the settlements that involve both users, optionally
	// restricted to one group (empty groupID means all scopes).
	ListPairRecords(ctx context.Context, userA, userB, groupID string) ([]models.Expense, []models.ExpenseSplit, []models.Settlement, error)

	// ListUserSplitDetails returns every split of a non-deleted expense
	// where the user is the payer or the ower.
	ListUserSplitDetails(ctx context.Context, userID string) ([]SplitDetail, error)

	// ListUserSettlements returns every settlement where the user is
	// payer or recipient.
	ListUserSettlements(ctx context.Context, userID string) ([]models.Settlement, error)

	// GetSettlement returns a settlement by ID.
	GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error)

	// ListGroupSettlements returns a group's settlements, newest first.
	ListGroupSettlements(ctx context.Context, groupID string) ([]models.Settlement, error)

	// InTx runs fn inside one atomic unit of work. If fn returns an
	// error the work rolls back and the error is returned unchanged;
	// otherwise the work commits. No partial side effects survive a
	// rollback.
	InTx(ctx context.Context, fn func(uow UnitOfWork) error) error

	// Close releases any resources held by the store.
	Close() error
}

// UnitOfWork is the transactional surface the settlement recorder runs
// on. All methods observe the transaction's own uncommitted writes.
type UnitOfWork interface {
	// GetSplitDetails loads splits with their parent-expense fields.
	// Splits that do not exist are simply absent from the result.
	GetSplitDetails(ctx context.Context, splitIDs []string) ([]SplitDetail, error)

	// InsertSettlement writes a settlement row, populating missing ID
	// and timestamps.
	InsertSettlement(ctx context.Context, settlement *models.Settlement) error

	// SettleSplits conditionally marks splits settled and links them to
	// the settlement, guarded on settled = false. It returns the IDs
	// actually updated: splits already claimed by a concurrent
	// settlement are skipped, never overwritten.
	SettleSplits(ctx context.Context, splitIDs []string, settlementID string) ([]string, error)

	// UnsettledSplitCount reports how many splits of an expense remain
	// unsettled.
	UnsettledSplitCount(ctx context.Context, expenseID string) (int, error)

	// MarkExpenseSettled flags an expense whose splits are all settled.
	MarkExpenseSettled(ctx context.Context, expenseID string) error

	// TransitionSettlement updates a settlement's status only if its
	// current status matches from, returning false when the guard
	// failed (already transitioned) and NotFoundError when the row
	// does not exist.
	TransitionSettlement(ctx context.Context, settlementID string, from, to models.SettlementStatus) (bool, error)
}
