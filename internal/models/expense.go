package models

// SplitMethod selects how an expense is divided among its participants.
type SplitMethod string

const (
	// SplitEqual divides the amount evenly, assigning any integer-division
	// remainder to the last participant in user-ID order.
	SplitEqual SplitMethod = "equal"

	// SplitPercentage divides the amount by per-participant percentages
	// that must sum to 100.
	SplitPercentage SplitMethod = "percentage"

	// SplitExact uses caller-supplied per-participant amounts that must
	// sum to the expense amount exactly.
	SplitExact SplitMethod = "exact"
)

// Valid reports whether m is one of the known split methods.
func (m SplitMethod) Valid() bool {
	switch m {
	case SplitEqual, SplitPercentage, SplitExact:
		return true
	}
	return false
}

// Expense represents a shared expense paid by one user.
//
// Amount is immutable once splits exist; an edit that changes the amount
// must regenerate the splits in the same unit of work.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// GroupID is the group this expense belongs to, empty for a
	// non-group expense between friends.
	GroupID string

	// PayerID is the user who paid the full amount up front.
	PayerID string

	// Description is a short human-readable label (e.g., "Dinner").
	Description string

	// Amount is the total expense amount in minor currency units.
	Amount int64

	// Currency is the ISO 4217 code (e.g., "USD").
	Currency string

	// SplitMethod records how the splits were derived.
	SplitMethod SplitMethod

	// Deleted marks a soft-deleted expense. Deleted expenses and their
	// splits are excluded from every balance computation.
	Deleted bool

	// Settled is true once every split of this expense is settled.
	Settled bool

	// CreatedAt and UpdatedAt are Unix timestamps.
	CreatedAt int64
	UpdatedAt int64
}

// ExpenseSplit is one non-payer participant's obligation from an expense.
// The payer's own share is never stored: a user does not owe themselves.
type ExpenseSplit struct {
	// ID is the unique identifier for the split (UUID format).
	ID string

	// ExpenseID is the expense this split was derived from.
	ExpenseID string

	// OwingUserID is the participant who owes this share to the payer.
	OwingUserID string

	// Amount is the owed share in minor currency units.
	Amount int64

	// Percentage is the share requested for percentage-method expenses.
	// Informational only; Amount is authoritative.
	Percentage float64

	// Settled is true once a completed settlement has discharged this
	// split. Guarded by a conditional update, so two concurrent
	// settlements cannot both claim the same split.
	Settled bool

	// SettlementID links to the settlement that discharged this split,
	// empty while unsettled.
	SettlementID string
}
