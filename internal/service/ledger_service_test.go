package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/internal/calculator"
	"github.com/tallyhq/tally/internal/models"
	"github.com/tallyhq/tally/internal/storage/sqlite"
)

func newTestService(t *testing.T) *LedgerService {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewLedgerService(store)
}

func equalExpense(groupID, payer string, amount int64, participants ...string) ExpenseInput {
	return ExpenseInput{
		GroupID:      groupID,
		PayerID:      payer,
		Amount:       amount,
		Currency:     "USD",
		SplitMethod:  models.SplitEqual,
		Participants: participants,
	}
}

func sumNets(balances []models.Balance) int64 {
	var sum int64
	for _, b := range balances {
		sum += b.Net
	}
	return sum
}

func netOf(balances []models.Balance, userID string) int64 {
	for _, b := range balances {
		if b.UserID == userID {
			return b.Net
		}
	}
	return 0
}

func TestCreateExpense(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	t.Run("equal split among payer and two others", func(t *testing.T) {
		expense, splits, err := svc.CreateExpense(ctx,
			equalExpense("g1", "alice", 300, "alice", "bob", "carol"))
		require.NoError(t, err)

		// The payer's own share is not persisted.
		require.Len(t, splits, 2)
		assert.Equal(t, "bob", splits[0].OwingUserID)
		assert.EqualValues(t, 100, splits[0].Amount)
		assert.Equal(t, "carol", splits[1].OwingUserID)
		assert.EqualValues(t, 100, splits[1].Amount)
		assert.False(t, expense.Settled)

		balances, err := svc.GetGroupBalances(ctx, "g1")
		require.NoError(t, err)
		assert.EqualValues(t, 200, netOf(balances, "alice"))
		assert.EqualValues(t, -100, netOf(balances, "bob"))
		assert.EqualValues(t, -100, netOf(balances, "carol"))
		assert.Zero(t, sumNets(balances))
	})

	t.Run("payer-only expense has nothing to settle", func(t *testing.T) {
		expense, splits, err := svc.CreateExpense(ctx,
			equalExpense("g1", "alice", 500, "alice"))
		require.NoError(t, err)
		assert.Empty(t, splits)
		assert.True(t, expense.Settled)
	})

	t.Run("validation failures do not persist anything", func(t *testing.T) {
		before, err := svc.ListGroupExpenses(ctx, "gv")
		require.NoError(t, err)

		_, _, err = svc.CreateExpense(ctx, equalExpense("gv", "alice", -5, "alice", "bob"))
		var validation *models.ValidationError
		require.ErrorAs(t, err, &validation)

		_, _, err = svc.CreateExpense(ctx, ExpenseInput{
			GroupID: "gv", PayerID: "", Amount: 100, Currency: "USD",
			SplitMethod: models.SplitEqual, Participants: []string{"a"},
		})
		require.ErrorAs(t, err, &validation)

		after, err := svc.ListGroupExpenses(ctx, "gv")
		require.NoError(t, err)
		assert.Equal(t, len(before), len(after))
	})
}

func TestUpdateAndDeleteExpense(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	t.Run("amount edit regenerates splits", func(t *testing.T) {
		expense, _, err := svc.CreateExpense(ctx,
			equalExpense("g1", "alice", 100, "alice", "bob"))
		require.NoError(t, err)

		in := equalExpense("g1", "alice", 240, "alice", "bob", "carol")
		updated, splits, err := svc.UpdateExpense(ctx, expense.ID, in)
		require.NoError(t, err)
		assert.EqualValues(t, 240, updated.Amount)
		require.Len(t, splits, 2)
		assert.EqualValues(t, 80, splits[0].Amount)
		assert.EqualValues(t, 80, splits[1].Amount)
	})

	t.Run("edits and deletes are refused once a split is settled", func(t *testing.T) {
		expense, splits, err := svc.CreateExpense(ctx,
			equalExpense("g2", "alice", 100, "alice", "bob"))
		require.NoError(t, err)

		_, err = svc.ApplySettlement(ctx, SettlementInput{
			GroupID: "g2", PayerID: "bob", RecipientID: "alice",
			Amount: 50, Currency: "USD", SplitIDs: []string{splits[0].ID},
		})
		require.NoError(t, err)

		var conflict *models.ConflictError
		_, _, err = svc.UpdateExpense(ctx, expense.ID, equalExpense("g2", "alice", 200, "alice", "bob"))
		require.ErrorAs(t, err, &conflict)

		err = svc.DeleteExpense(ctx, expense.ID)
		require.ErrorAs(t, err, &conflict)
	})

	t.Run("deleted expense vanishes from balances", func(t *testing.T) {
		expense, _, err := svc.CreateExpense(ctx,
			equalExpense("g3", "alice", 90, "alice", "bob", "carol"))
		require.NoError(t, err)

		require.NoError(t, svc.DeleteExpense(ctx, expense.ID))

		balances, err := svc.GetGroupBalances(ctx, "g3")
		require.NoError(t, err)
		for _, b := range balances {
			assert.Zero(t, b.Net)
		}

		var notFound *models.NotFoundError
		_, _, err = svc.GetExpense(ctx, expense.ID)
		require.ErrorAs(t, err, &notFound)
	})
}

func TestRecommendAndApplyLoop(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// Build an unbalanced group, then settle it fully by following the
	// recommendations as plain payments.
	_, _, err := svc.CreateExpense(ctx, equalExpense("trip", "alice", 300, "alice", "bob", "carol"))
	require.NoError(t, err)
	_, _, err = svc.CreateExpense(ctx, equalExpense("trip", "bob", 120, "bob", "carol"))
	require.NoError(t, err)

	transfers, err := svc.RecommendSettlements(ctx, "trip")
	require.NoError(t, err)
	require.NotEmpty(t, transfers)

	balances, err := svc.GetGroupBalances(ctx, "trip")
	require.NoError(t, err)
	nonzero := 0
	for _, b := range balances {
		if b.Net != 0 {
			nonzero++
		}
	}
	assert.LessOrEqual(t, len(transfers), nonzero-1)

	for _, tr := range transfers {
		_, err := svc.ApplySettlement(ctx, SettlementInput{
			GroupID: "trip", PayerID: tr.PayerID, RecipientID: tr.RecipientID,
			Amount: tr.Amount, Currency: "USD",
		})
		require.NoError(t, err)
	}

	balances, err = svc.GetGroupBalances(ctx, "trip")
	require.NoError(t, err)
	for _, b := range balances {
		assert.Zero(t, b.Net, "user %s should be square", b.UserID)
	}

	// A settled group recommends nothing.
	transfers, err = svc.RecommendSettlements(ctx, "trip")
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestApplySettlement(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	t.Run("settling every split marks the expense settled", func(t *testing.T) {
		expense, splits, err := svc.CreateExpense(ctx,
			equalExpense("g1", "alice", 200, "alice", "bob"))
		require.NoError(t, err)
		require.Len(t, splits, 1)

		res, err := svc.ApplySettlement(ctx, SettlementInput{
			GroupID: "g1", PayerID: "bob", RecipientID: "alice",
			Amount: 100, Currency: "USD", SplitIDs: []string{splits[0].ID},
		})
		require.NoError(t, err)
		assert.Equal(t, models.SettlementCompleted, res.Settlement.Status)
		assert.Equal(t, []string{splits[0].ID}, res.SettledSplitIDs)
		assert.Empty(t, res.SkippedSplitIDs)

		got, gotSplits, err := svc.GetExpense(ctx, expense.ID)
		require.NoError(t, err)
		assert.True(t, got.Settled)
		assert.True(t, gotSplits[0].Settled)
		assert.Equal(t, res.Settlement.ID, gotSplits[0].SettlementID)
	})

	t.Run("double settlement is a conflict with no duplicate debit", func(t *testing.T) {
		_, splits, err := svc.CreateExpense(ctx,
			equalExpense("g2", "alice", 200, "alice", "bob"))
		require.NoError(t, err)

		first, err := svc.ApplySettlement(ctx, SettlementInput{
			GroupID: "g2", PayerID: "bob", RecipientID: "alice",
			Amount: 100, Currency: "USD", SplitIDs: []string{splits[0].ID},
		})
		require.NoError(t, err)
		require.Len(t, first.SettledSplitIDs, 1)

		_, err = svc.ApplySettlement(ctx, SettlementInput{
			GroupID: "g2", PayerID: "bob", RecipientID: "alice",
			Amount: 100, Currency: "USD", SplitIDs: []string{splits[0].ID},
		})
		var conflict *models.ConflictError
		require.ErrorAs(t, err, &conflict)

		// Only the first settlement exists; balances are square, not
		// double-credited.
		settlements, err := svc.ListGroupSettlements(ctx, "g2")
		require.NoError(t, err)
		require.Len(t, settlements, 1)

		balances, err := svc.GetGroupBalances(ctx, "g2")
		require.NoError(t, err)
		for _, b := range balances {
			assert.Zero(t, b.Net)
		}
	})

	t.Run("partial overlap settles only the splits it wins", func(t *testing.T) {
		_, splits, err := svc.CreateExpense(ctx, ExpenseInput{
			GroupID: "g3", PayerID: "alice", Amount: 300, Currency: "USD",
			SplitMethod:  models.SplitExact,
			Participants: []string{"bob", "carol"},
			Params: calculator.SplitParams{Amounts: map[string]int64{
				"bob": 100, "carol": 200,
			}},
		})
		require.NoError(t, err)
		require.Len(t, splits, 2)
		bobSplit := splits[0]
		require.Equal(t, "bob", bobSplit.OwingUserID)

		_, err = svc.ApplySettlement(ctx, SettlementInput{
			GroupID: "g3", PayerID: "bob", RecipientID: "alice",
			Amount: 100, Currency: "USD", SplitIDs: []string{bobSplit.ID},
		})
		require.NoError(t, err)

		// Reuse bob's already-settled split plus a fresh one from a new
		// expense to exercise the skip path.
		_, moreSplits, err := svc.CreateExpense(ctx,
			equalExpense("g3", "alice", 50, "alice", "bob"))
		require.NoError(t, err)

		res, err := svc.ApplySettlement(ctx, SettlementInput{
			GroupID: "g3", PayerID: "bob", RecipientID: "alice",
			Amount: 25, Currency: "USD",
			SplitIDs: []string{bobSplit.ID, moreSplits[0].ID},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{moreSplits[0].ID}, res.SettledSplitIDs)
		assert.Equal(t, []string{bobSplit.ID}, res.SkippedSplitIDs)
	})

	t.Run("ownership and input validation", func(t *testing.T) {
		_, splits, err := svc.CreateExpense(ctx,
			equalExpense("g4", "alice", 90, "alice", "bob", "carol"))
		require.NoError(t, err)

		var validation *models.ValidationError
		var notFound *models.NotFoundError

		// Same payer and recipient.
		_, err = svc.ApplySettlement(ctx, SettlementInput{
			PayerID: "bob", RecipientID: "bob", Amount: 10, Currency: "USD",
		})
		require.ErrorAs(t, err, &validation)

		// Non-positive amount.
		_, err = svc.ApplySettlement(ctx, SettlementInput{
			PayerID: "bob", RecipientID: "alice", Amount: 0, Currency: "USD",
		})
		require.ErrorAs(t, err, &validation)

		// Split owed by carol, not bob.
		carolSplit := splits[1]
		require.Equal(t, "carol", carolSplit.OwingUserID)
		_, err = svc.ApplySettlement(ctx, SettlementInput{
			PayerID: "bob", RecipientID: "alice", Amount: 30, Currency: "USD",
			SplitIDs: []string{carolSplit.ID},
		})
		require.ErrorAs(t, err, &validation)

		// Currency mismatch.
		_, err = svc.ApplySettlement(ctx, SettlementInput{
			PayerID: "bob", RecipientID: "alice", Amount: 30, Currency: "EUR",
			SplitIDs: []string{splits[0].ID},
		})
		require.ErrorAs(t, err, &validation)

		// Unknown split.
		_, err = svc.ApplySettlement(ctx, SettlementInput{
			PayerID: "bob", RecipientID: "alice", Amount: 30, Currency: "USD",
			SplitIDs: []string{"missing"},
		})
		require.ErrorAs(t, err, &notFound)

		// Pending settlements cannot claim splits.
		_, err = svc.ApplySettlement(ctx, SettlementInput{
			PayerID: "bob", RecipientID: "alice", Amount: 30, Currency: "USD",
			SplitIDs: []string{splits[0].ID}, Pending: true,
		})
		require.ErrorAs(t, err, &validation)

		// None of the failures recorded a settlement.
		settlements, err := svc.ListGroupSettlements(ctx, "g4")
		require.NoError(t, err)
		assert.Empty(t, settlements)
	})
}

func TestPendingSettlementLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.CreateExpense(ctx, equalExpense("g1", "alice", 100, "alice", "bob"))
	require.NoError(t, err)

	res, err := svc.ApplySettlement(ctx, SettlementInput{
		GroupID: "g1", PayerID: "bob", RecipientID: "alice",
		Amount: 50, Currency: "USD", Pending: true,
	})
	require.NoError(t, err)
	require.Equal(t, models.SettlementPending, res.Settlement.Status)

	// Pending payments do not move balances.
	balances, err := svc.GetGroupBalances(ctx, "g1")
	require.NoError(t, err)
	assert.EqualValues(t, -50, netOf(balances, "bob"))

	completed, err := svc.CompleteSettlement(ctx, res.Settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementCompleted, completed.Status)

	balances, err = svc.GetGroupBalances(ctx, "g1")
	require.NoError(t, err)
	assert.Zero(t, netOf(balances, "bob"))

	// Terminal settlements cannot transition again.
	var conflict *models.ConflictError
	_, err = svc.CancelSettlement(ctx, res.Settlement.ID)
	require.ErrorAs(t, err, &conflict)

	var notFound *models.NotFoundError
	_, err = svc.CompleteSettlement(ctx, "missing")
	require.ErrorAs(t, err, &notFound)
}

func TestPairwiseBalanceAndSummary(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// alice paid 300 in g1: bob and carol owe 100 each.
	_, _, err := svc.CreateExpense(ctx, equalExpense("g1", "alice", 300, "alice", "bob", "carol"))
	require.NoError(t, err)
	// bob paid 90 outside any group: alice and carol owe 30 each.
	_, _, err = svc.CreateExpense(ctx, equalExpense("", "bob", 90, "alice", "bob", "carol"))
	require.NoError(t, err)

	t.Run("pairwise spans scopes by default", func(t *testing.T) {
		// bob owes alice 100, alice owes bob 30.
		net, err := svc.GetPairwiseBalance(ctx, "alice", "bob", "")
		require.NoError(t, err)
		assert.EqualValues(t, 70, net)

		net, err = svc.GetPairwiseBalance(ctx, "bob", "alice", "")
		require.NoError(t, err)
		assert.EqualValues(t, -70, net)
	})

	t.Run("pairwise restricted to one group", func(t *testing.T) {
		net, err := svc.GetPairwiseBalance(ctx, "alice", "bob", "g1")
		require.NoError(t, err)
		assert.EqualValues(t, 100, net)
	})

	t.Run("same user is rejected", func(t *testing.T) {
		var validation *models.ValidationError
		_, err := svc.GetPairwiseBalance(ctx, "alice", "alice", "")
		require.ErrorAs(t, err, &validation)
	})

	t.Run("user summary nets every counterparty", func(t *testing.T) {
		summary, err := svc.GetUserSummary(ctx, "alice")
		require.NoError(t, err)

		require.Len(t, summary.Counterparties, 2)
		assert.Equal(t, "bob", summary.Counterparties[0].OtherUserID)
		assert.EqualValues(t, 70, summary.Counterparties[0].Net)
		assert.Equal(t, "carol", summary.Counterparties[1].OtherUserID)
		assert.EqualValues(t, 100, summary.Counterparties[1].Net)
		assert.EqualValues(t, 170, summary.TotalOwedToUser)
		assert.Zero(t, summary.TotalUserOwes)

		carol, err := svc.GetUserSummary(ctx, "carol")
		require.NoError(t, err)
		assert.EqualValues(t, 130, carol.TotalUserOwes)
		assert.Zero(t, carol.TotalOwedToUser)
	})
}
