package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/tallyhq/tally/internal/calculator"
	"github.com/tallyhq/tally/internal/metrics"
	"github.com/tallyhq/tally/internal/models"
	"github.com/tallyhq/tally/internal/storage"
)

// SettlementInput carries a payment to record.
type SettlementInput struct {
	GroupID     string
	PayerID     string
	RecipientID string
	Amount      int64 // minor currency units
	Currency    string
	Note        string

	// SplitIDs optionally names the splits this payment discharges.
	// Each must be owed by PayerID on an expense paid by RecipientID.
	SplitIDs []string

	// Pending records the settlement without counting it toward
	// balances; it must later be completed or cancelled. A pending
	// settlement cannot claim splits.
	Pending bool
}

// SettlementResult reports what a recorded settlement actually did.
type SettlementResult struct {
	Settlement models.Settlement

	// SettledSplitIDs are the splits this settlement won.
	SettledSplitIDs []string

	// SkippedSplitIDs are requested splits that were already settled
	// by a prior or concurrent settlement. Skipping them keeps the
	// operation idempotent; they are never settled twice.
	SkippedSplitIDs []string
}

// ApplySettlement records a payment and, when split IDs are given,
// atomically discharges those splits and marks fully-settled expenses.
//
// Concurrency: the split updates are conditional on settled = false, so
// of two racing settlements over the same split exactly one wins. If
// every requested split was already settled the whole operation rolls
// back and returns ConflictError: no duplicate debit is recorded, and
// the lost race is visible to the caller.
func (s *LedgerService) ApplySettlement(ctx context.Context, in SettlementInput) (*SettlementResult, error) {
	defer observe("apply_settlement")()

	if err := validateSettlementInput(in); err != nil {
		slog.Warn("ApplySettlement rejected",
			"payer_id", in.PayerID, "recipient_id", in.RecipientID, "error", err)
		return nil, err
	}
	splitIDs := dedupe(in.SplitIDs)

	status := models.SettlementCompleted
	if in.Pending {
		status = models.SettlementPending
	}
	settlement := &models.Settlement{
		GroupID:     in.GroupID,
		PayerID:     in.PayerID,
		RecipientID: in.RecipientID,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Status:      status,
		Note:        in.Note,
	}

	result := &SettlementResult{}
	err := s.store.InTx(ctx, func(uow storage.UnitOfWork) error {
		if len(splitIDs) > 0 {
			if err := checkSplitOwnership(ctx, uow, splitIDs, in); err != nil {
				return err
			}
		}

		if err := uow.InsertSettlement(ctx, settlement); err != nil {
			return err
		}

		if len(splitIDs) > 0 {
			settled, err := uow.SettleSplits(ctx, splitIDs, settlement.ID)
			if err != nil {
				return err
			}
			if len(settled) == 0 {
				// Every split already claimed; roll everything back.
				return models.Conflictf("all %d requested splits are already settled", len(splitIDs))
			}
			result.SettledSplitIDs = settled
			result.SkippedSplitIDs = difference(splitIDs, settled)

			if err := settleCoveredExpenses(ctx, uow, settled); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var conflict *models.ConflictError
		if errors.As(err, &conflict) {
			metrics.SettlementConflicts.Inc()
			slog.Warn("ApplySettlement conflict",
				"payer_id", in.PayerID, "recipient_id", in.RecipientID, "error", err)
		} else {
			slog.Error("ApplySettlement failed",
				"payer_id", in.PayerID, "recipient_id", in.RecipientID, "error", err)
		}
		return nil, err
	}

	result.Settlement = *settlement
	metrics.SettlementsApplied.WithLabelValues(string(status)).Inc()
	metrics.SplitsSettled.Add(float64(len(result.SettledSplitIDs)))
	slog.Info("settlement applied",
		"settlement_id", settlement.ID,
		"payer_id", settlement.PayerID,
		"recipient_id", settlement.RecipientID,
		"amount", settlement.Amount,
		"status", settlement.Status,
		"splits_settled", len(result.SettledSplitIDs),
		"splits_skipped", len(result.SkippedSplitIDs),
	)
	return result, nil
}

// CompleteSettlement transitions a pending settlement to completed, after
// which it counts toward balances. Terminal settlements stay immutable.
func (s *LedgerService) CompleteSettlement(ctx context.Context, settlementID string) (*models.Settlement, error) {
	defer observe("complete_settlement")()
	return s.transition(ctx, settlementID, models.SettlementCompleted)
}

// CancelSettlement transitions a pending settlement to cancelled.
func (s *LedgerService) CancelSettlement(ctx context.Context, settlementID string) (*models.Settlement, error) {
	defer observe("cancel_settlement")()
	return s.transition(ctx, settlementID, models.SettlementCancelled)
}

func (s *LedgerService) transition(ctx context.Context, settlementID string, to models.SettlementStatus) (*models.Settlement, error) {
	err := s.store.InTx(ctx, func(uow storage.UnitOfWork) error {
		ok, err := uow.TransitionSettlement(ctx, settlementID, models.SettlementPending, to)
		if err != nil {
			return err
		}
		if !ok {
			return models.Conflictf("settlement %s is not pending", settlementID)
		}
		return nil
	})
	if err != nil {
		slog.Warn("settlement transition failed", "settlement_id", settlementID, "to", to, "error", err)
		return nil, err
	}

	slog.Info("settlement transitioned", "settlement_id", settlementID, "to", to)
	return s.store.GetSettlement(ctx, settlementID)
}

func validateSettlementInput(in SettlementInput) error {
	if in.PayerID == "" || in.RecipientID == "" {
		return models.Validationf("payer and recipient required")
	}
	if in.PayerID == in.RecipientID {
		return models.Validationf("payer and recipient must differ")
	}
	if in.Amount <= 0 {
		return models.Validationf("amount must be positive, got %d", in.Amount)
	}
	if in.Currency == "" {
		return models.Validationf("currency required")
	}
	if in.Pending && len(in.SplitIDs) > 0 {
		return models.Validationf("a pending settlement cannot claim splits; complete it first")
	}
	return nil
}

// checkSplitOwnership verifies every requested split exists, sits on a
// live expense, matches the payment currency, and actually belongs to the
// payer→recipient relationship being settled.
func checkSplitOwnership(ctx context.Context, uow storage.UnitOfWork, splitIDs []string, in SettlementInput) error {
	details, err := uow.GetSplitDetails(ctx, splitIDs)
	if err != nil {
		return err
	}
	byID := make(map[string]storage.SplitDetail, len(details))
	for _, d := range details {
		byID[d.Split.ID] = d
	}

	for _, id := range splitIDs {
		d, ok := byID[id]
		if !ok || d.ExpenseDeleted {
			return models.NotFound("split", id)
		}
		if d.Split.OwingUserID != in.PayerID || d.ExpensePayerID != in.RecipientID {
			return models.Validationf("split %s is not owed by %s to %s", id, in.PayerID, in.RecipientID)
		}
		if d.ExpenseCurrency != in.Currency {
			return models.Validationf("split %s is in %s, settlement is in %s", id, d.ExpenseCurrency, in.Currency)
		}
	}
	return nil
}

// settleCoveredExpenses marks every expense settled whose splits are now
// all settled, observing the transaction's own writes.
func settleCoveredExpenses(ctx context.Context, uow storage.UnitOfWork, settledIDs []string) error {
	details, err := uow.GetSplitDetails(ctx, settledIDs)
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, d := range details {
		expID := d.Split.ExpenseID
		if seen[expID] {
			continue
		}
		seen[expID] = true

		remaining, err := uow.UnsettledSplitCount(ctx, expID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := uow.MarkExpenseSettled(ctx, expID); err != nil {
				return err
			}
		}
	}
	return nil
}

// splitsFromShares turns calculator shares into persistable splits,
// dropping the payer's own share.
func splitsFromShares(shares []calculator.Share, payerID string) []models.ExpenseSplit {
	splits := make([]models.ExpenseSplit, 0, len(shares))
	for _, sh := range shares {
		if sh.UserID == payerID {
			continue
		}
		splits = append(splits, models.ExpenseSplit{
			OwingUserID: sh.UserID,
			Amount:      sh.Amount,
			Percentage:  sh.Percentage,
		})
	}
	return splits
}

// summarize folds a user's splits and settlements into per-counterparty
// nets. Positive net means the counterparty owes the user.
func summarize(userID string, details []storage.SplitDetail, settlements []models.Settlement) *models.UserSummary {
	nets := make(map[string]int64)
	for _, d := range details {
		switch {
		case d.ExpensePayerID == userID && d.Split.OwingUserID != userID:
			nets[d.Split.OwingUserID] += d.Split.Amount
		case d.Split.OwingUserID == userID && d.ExpensePayerID != userID:
			nets[d.ExpensePayerID] -= d.Split.Amount
		}
	}
	for _, st := range settlements {
		if st.Status != models.SettlementCompleted {
			continue
		}
		switch {
		case st.PayerID == userID:
			nets[st.RecipientID] += st.Amount
		case st.RecipientID == userID:
			nets[st.PayerID] -= st.Amount
		}
	}

	summary := &models.UserSummary{UserID: userID}
	others := make([]string, 0, len(nets))
	for other := range nets {
		others = append(others, other)
	}
	sort.Strings(others)
	for _, other := range others {
		net := nets[other]
		if net == 0 {
			continue
		}
		summary.Counterparties = append(summary.Counterparties, models.PairBalance{
			OtherUserID: other,
			Net:         net,
		})
		if net > 0 {
			summary.TotalOwedToUser += net
		} else {
			summary.TotalUserOwes += -net
		}
	}
	return summary
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func difference(all, subset []string) []string {
	in := make(map[string]bool, len(subset))
	for _, id := range subset {
		in[id] = true
	}
	var out []string
	for _, id := range all {
		if !in[id] {
			out = append(out, id)
		}
	}
	return out
}
