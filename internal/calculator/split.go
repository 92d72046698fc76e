// Package calculator holds the pure arithmetic of the ledger engine:
// split computation, balance reduction, and settlement recommendation.
// Nothing in this package touches storage or mutates shared state, so
// every function is safe to call concurrently.
package calculator

import (
	"math"
	"sort"

	"github.com/tallyhq/tally/internal/models"
)

// percentSumTolerance bounds the accepted drift when validating that
// percentages sum to 100. Amounts themselves are exact int64 minor units;
// only the caller-supplied percentages are floats.
const percentSumTolerance = 1e-9

// Share is one participant's computed part of an expense.
type Share struct {
	UserID     string
	Amount     int64   // minor currency units
	Percentage float64 // informational, percentage method only
}

// SplitParams carries the method-specific inputs for ComputeSplits.
type SplitParams struct {
	// Percentages maps participant ID to their percentage share.
	// Required for the percentage method, one entry per participant.
	Percentages map[string]float64

	// Amounts maps participant ID to their explicit share in minor
	// units. Required for the exact method, one entry per participant.
	Amounts map[string]int64
}

// ComputeSplits divides total among participants according to method.
//
// The returned shares always sum to total exactly, in participant
// user-ID order. The payer may or may not appear in participants; the
// calculator is payer-agnostic and callers drop the payer's own share
// before persisting.
func ComputeSplits(total int64, method models.SplitMethod, participants []string, params SplitParams) ([]Share, error) {
	if total <= 0 {
		return nil, models.Validationf("total must be positive, got %d", total)
	}
	if len(participants) == 0 {
		return nil, models.Validationf("at least one participant required")
	}

	// Stable, deterministic ordering by user ID. The remainder rules
	// below depend on it.
	ordered := make([]string, len(participants))
	copy(ordered, participants)
	sort.Strings(ordered)
	for i := 1; i < len(ordered); i++ {
		if ordered[i] == ordered[i-1] {
			return nil, models.Validationf("duplicate participant: %s", ordered[i])
		}
	}

	switch method {
	case models.SplitEqual:
		return equalShares(total, ordered), nil
	case models.SplitPercentage:
		return percentageShares(total, ordered, params.Percentages)
	case models.SplitExact:
		return exactShares(total, ordered, params.Amounts)
	default:
		return nil, models.Validationf("unknown split method: %q", method)
	}
}

// equalShares assigns floor(total/n) to everyone except the last
// participant, who absorbs the remainder. Integer arithmetic keeps the
// sum exact without floating point.
func equalShares(total int64, ordered []string) []Share {
	n := int64(len(ordered))
	base := total / n

	shares := make([]Share, len(ordered))
	for i, id := range ordered {
		shares[i] = Share{UserID: id, Amount: base}
	}
	shares[len(shares)-1].Amount = total - base*(n-1)
	return shares
}

// percentageShares rounds each share half-up, then reconciles: rounding
// each share independently can miss the total by a few minor units, so
// the discrepancy is added to the participant with the largest raw share
// (ties broken by smallest user ID).
func percentageShares(total int64, ordered []string, percentages map[string]float64) ([]Share, error) {
	if len(percentages) != len(ordered) {
		return nil, models.Validationf("percentage split needs exactly one percentage per participant, got %d for %d participants",
			len(percentages), len(ordered))
	}

	var pctSum float64
	for _, id := range ordered {
		pct, ok := percentages[id]
		if !ok {
			return nil, models.Validationf("missing percentage for participant %s", id)
		}
		if pct < 0 {
			return nil, models.Validationf("negative percentage for participant %s", id)
		}
		pctSum += pct
	}
	if math.Abs(pctSum-100) > percentSumTolerance {
		return nil, models.Validationf("percentages must sum to 100, got %v", pctSum)
	}

	shares := make([]Share, len(ordered))
	var sum int64
	largest := 0
	for i, id := range ordered {
		pct := percentages[id]
		// Round half-up, uniformly.
		raw := int64(math.Floor(float64(total)*pct/100 + 0.5))
		shares[i] = Share{UserID: id, Amount: raw, Percentage: pct}
		sum += raw
		if raw > shares[largest].Amount {
			largest = i
		}
	}

	// ordered is ascending by user ID, so the first maximum wins ties.
	shares[largest].Amount += total - sum
	if shares[largest].Amount < 0 {
		return nil, models.Validationf("percentage reconciliation produced a negative share for %s", shares[largest].UserID)
	}
	return shares, nil
}

// exactShares validates caller-supplied amounts. No silent correction:
// a sum mismatch is the caller's error to fix.
func exactShares(total int64, ordered []string, amounts map[string]int64) ([]Share, error) {
	if len(amounts) != len(ordered) {
		return nil, models.Validationf("exact split needs exactly one amount per participant, got %d for %d participants",
			len(amounts), len(ordered))
	}

	shares := make([]Share, len(ordered))
	var sum int64
	for i, id := range ordered {
		amt, ok := amounts[id]
		if !ok {
			return nil, models.Validationf("missing amount for participant %s", id)
		}
		if amt < 0 {
			return nil, models.Validationf("negative amount for participant %s", id)
		}
		shares[i] = Share{UserID: id, Amount: amt}
		sum += amt
	}
	if sum != total {
		return nil, models.Validationf("exact split amounts sum to %d, want %d", sum, total)
	}
	return shares, nil
}
