package calculator

import (
	"sort"

	"github.com/tallyhq/tally/internal/models"
)

// ReduceBalances folds committed expenses, splits, and settlements into
// per-user net balances for one scope.
//
// Each split credits the expense's payer and debits the owing user by the
// same amount, and each completed settlement credits its payer and debits
// its recipient, so the returned nets sum to exactly zero by construction.
// Splits of deleted expenses and non-completed settlements are ignored.
//
// Read-only: safe to call concurrently and repeatedly.
func ReduceBalances(expenses []models.Expense, splits []models.ExpenseSplit, settlements []models.Settlement) []models.Balance {
	// Payer lookup for splits; deleted expenses drop out here.
	payerOf := make(map[string]string, len(expenses))
	balances := make(map[string]*models.Balance)

	at := func(userID string) *models.Balance {
		b, ok := balances[userID]
		if !ok {
			b = &models.Balance{UserID: userID}
			balances[userID] = b
		}
		return b
	}

	for _, e := range expenses {
		if e.Deleted {
			continue
		}
		payerOf[e.ID] = e.PayerID
		at(e.PayerID).TotalPaid += e.Amount
	}

	for _, s := range splits {
		payer, ok := payerOf[s.ExpenseID]
		if !ok {
			continue // deleted or out-of-scope expense
		}
		at(payer).Net += s.Amount
		ower := at(s.OwingUserID)
		ower.Net -= s.Amount
		ower.TotalOwed += s.Amount
	}

	for _, st := range settlements {
		if st.Status != models.SettlementCompleted {
			continue
		}
		payer := at(st.PayerID)
		payer.Net += st.Amount
		payer.TotalPaid += st.Amount
		recipient := at(st.RecipientID)
		recipient.Net -= st.Amount
		recipient.TotalOwed += st.Amount
	}

	out := make([]models.Balance, 0, len(balances))
	for _, b := range balances {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// ReducePairBalance nets the obligations between two users into a single
// signed amount. Positive means userB owes userA.
//
// Only splits where one of the pair paid and the other owes contribute;
// settled splits and the completed settlements that discharged them cancel
// each other out, so both are included.
func ReducePairBalance(userA, userB string, expenses []models.Expense, splits []models.ExpenseSplit, settlements []models.Settlement) int64 {
	payerOf := make(map[string]string, len(expenses))
	for _, e := range expenses {
		if e.Deleted {
			continue
		}
		payerOf[e.ID] = e.PayerID
	}

	var net int64
	for _, s := range splits {
		payer, ok := payerOf[s.ExpenseID]
		if !ok {
			continue
		}
		switch {
		case payer == userA && s.OwingUserID == userB:
			net += s.Amount
		case payer == userB && s.OwingUserID == userA:
			net -= s.Amount
		}
	}

	for _, st := range settlements {
		if st.Status != models.SettlementCompleted {
			continue
		}
		switch {
		case st.PayerID == userB && st.RecipientID == userA:
			net -= st.Amount
		case st.PayerID == userA && st.RecipientID == userB:
			net += st.Amount
		}
	}
	return net
}
