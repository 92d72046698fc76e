package calculator

import (
	"sort"

	"github.com/tallyhq/tally/internal/models"
)

// party is one side of the greedy matching: a user and how much of their
// balance remains unmatched.
type party struct {
	userID    string
	remaining int64
}

// RecommendSettlements turns a zero-sum balance vector into an ordered
// list of payments that zeroes every balance.
//
// Greedy largest-to-largest matching: repeatedly pair the largest debtor
// with the largest creditor and transfer the smaller of the two remaining
// magnitudes. Each step zeroes at least one party, so at most n-1
// transfers are emitted for n nonzero balances. This is a deterministic,
// documented approximation, not a guaranteed global minimum (true
// minimum-cardinality netting is NP-hard).
//
// The input must sum to zero; anything else means an upstream invariant
// was violated, and the function returns InternalConsistencyError rather
// than a misleading partial plan.
func RecommendSettlements(balances []models.Balance) ([]models.Transfer, error) {
	var sum int64
	var creditors, debtors []party
	for _, b := range balances {
		sum += b.Net
		switch {
		case b.Net > 0:
			creditors = append(creditors, party{userID: b.UserID, remaining: b.Net})
		case b.Net < 0:
			debtors = append(debtors, party{userID: b.UserID, remaining: -b.Net})
		}
	}
	if sum != 0 {
		return nil, models.Inconsistencyf("balance vector sums to %d, want 0: refusing to recommend settlements", sum)
	}

	var transfers []models.Transfer
	for len(debtors) > 0 && len(creditors) > 0 {
		// Re-sorting per round keeps the descending order after the
		// previous round shrank a head. Magnitude descending, user ID
		// ascending on ties, for a deterministic plan.
		sortParties(debtors)
		sortParties(creditors)

		d, c := &debtors[0], &creditors[0]
		x := min(d.remaining, c.remaining)
		transfers = append(transfers, models.Transfer{
			PayerID:     d.userID,
			RecipientID: c.userID,
			Amount:      x,
		})

		d.remaining -= x
		c.remaining -= x
		if d.remaining == 0 {
			debtors = debtors[1:]
		}
		if c.remaining == 0 {
			creditors = creditors[1:]
		}
	}

	// The zero-sum precondition makes both sides empty together.
	return transfers, nil
}

func sortParties(ps []party) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].remaining != ps[j].remaining {
			return ps[i].remaining > ps[j].remaining
		}
		return ps[i].userID < ps[j].userID
	})
}
