package models

// Balance is the derived net position for one user within a scope.
// It is always recomputed from committed rows, never stored.
type Balance struct {
	// UserID identifies the user this balance belongs to.
	UserID string

	// Net is what the user is owed (positive) or owes (negative),
	// in minor currency units. Over any closed scope the Net values
	// of all users sum to exactly zero.
	Net int64

	// TotalPaid is the sum of expense amounts this user paid plus
	// completed settlements they sent. Informational.
	TotalPaid int64

	// TotalOwed is the sum of split amounts this user owes plus
	// completed settlements they received. Informational.
	TotalOwed int64
}

// Transfer is one recommended payment from the settlement optimizer.
// Advisory only: no locks are held between recommendation and apply,
// so the conditional update in the recorder re-validates at apply time.
type Transfer struct {
	// PayerID is the debtor who should send the payment.
	PayerID string

	// RecipientID is the creditor who should receive it.
	RecipientID string

	// Amount is the recommended payment in minor currency units.
	Amount int64
}

// PairBalance summarizes one counterparty within a user summary.
type PairBalance struct {
	// OtherUserID is the counterparty.
	OtherUserID string

	// Net is positive when the counterparty owes the summarized user.
	Net int64
}

// UserSummary is a user's overall position across all groups.
type UserSummary struct {
	// UserID identifies the summarized user.
	UserID string

	// TotalOwedToUser is the sum of positive counterparty nets.
	TotalOwedToUser int64

	// TotalUserOwes is the sum of negative counterparty nets, as a
	// positive magnitude.
	TotalUserOwes int64

	// Counterparties lists every user with a nonzero net against the
	// summarized user, ordered by user ID.
	Counterparties []PairBalance
}
