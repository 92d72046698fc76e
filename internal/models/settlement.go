package models

// SettlementStatus is the lifecycle state of a settlement.
// Completed and cancelled are terminal.
type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "pending"
	SettlementCompleted SettlementStatus = "completed"
	SettlementCancelled SettlementStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s SettlementStatus) Valid() bool {
	switch s {
	case SettlementPending, SettlementCompleted, SettlementCancelled:
		return true
	}
	return false
}

// Terminal reports whether s permits no further transitions.
func (s SettlementStatus) Terminal() bool {
	return s == SettlementCompleted || s == SettlementCancelled
}

// Settlement represents a payment between two users that discharges debt.
// Once completed it is immutable except for the splits it references
// transitioning to settled.
type Settlement struct {
	// ID is the unique identifier for the settlement (UUID format).
	ID string

	// GroupID is the group this settlement belongs to, empty for a
	// payment outside any group.
	GroupID string

	// PayerID is the user who paid (debtor settling up).
	PayerID string

	// RecipientID is the user who received payment (creditor being paid).
	RecipientID string

	// Amount is the payment amount in minor currency units.
	Amount int64

	// Currency is the ISO 4217 code.
	Currency string

	// Status is pending, completed, or cancelled. Only completed
	// settlements count toward balances.
	Status SettlementStatus

	// Note is an optional description for the settlement.
	Note string

	// CreatedAt and UpdatedAt are Unix timestamps.
	CreatedAt int64
	UpdatedAt int64
}
