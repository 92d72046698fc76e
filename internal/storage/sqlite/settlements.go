package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/models"
	"github.com/tallyhq/tally/internal/storage"
)

const settlementColumns = "id, group_id, payer_id, recipient_id, amount, currency, status, note, created_at, updated_at"

// GetSettlement retrieves a settlement by ID.
func (s *SQLiteStore) GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE id = ?`,
		settlementID,
	)
	st, err := scanSettlementRow(row)
	if err == sql.ErrNoRows {
		return nil, models.NotFound("settlement", settlementID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return st, nil
}

// ListGroupSettlements retrieves all settlements for a group, newest first.
func (s *SQLiteStore) ListGroupSettlements(ctx context.Context, groupID string) ([]models.Settlement, error) {
	return s.querySettlements(ctx,
		`SELECT `+settlementColumns+` FROM settlements
		 WHERE group_id = ? ORDER BY created_at DESC, id`,
		groupID,
	)
}

// ListUserSettlements retrieves every settlement where the user is payer
// or recipient.
func (s *SQLiteStore) ListUserSettlements(ctx context.Context, userID string) ([]models.Settlement, error) {
	return s.querySettlements(ctx,
		`SELECT `+settlementColumns+` FROM settlements
		 WHERE payer_id = ? OR recipient_id = ?
		 ORDER BY created_at DESC, id`,
		userID, userID,
	)
}

func (s *SQLiteStore) querySettlements(ctx context.Context, query string, args ...any) ([]models.Settlement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlements: %w", err)
	}
	defer rows.Close()

	var settlements []models.Settlement
	for rows.Next() {
		var st models.Settlement
		var status string
		if err := rows.Scan(&st.ID, &st.GroupID, &st.PayerID, &st.RecipientID,
			&st.Amount, &st.Currency, &status, &st.Note,
			&st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		st.Status = models.SettlementStatus(status)
		settlements = append(settlements, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return settlements, nil
}

func scanSettlementRow(row *sql.Row) (*models.Settlement, error) {
	st := &models.Settlement{}
	var status string
	if err := row.Scan(&st.ID, &st.GroupID, &st.PayerID, &st.RecipientID,
		&st.Amount, &st.Currency, &status, &st.Note,
		&st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	st.Status = models.SettlementStatus(status)
	return st, nil
}

// --- UnitOfWork implementation ---

// GetSplitDetails loads splits with their parent-expense fields inside the
// transaction. Missing splits are simply absent from the result.
func (u *unitOfWork) GetSplitDetails(ctx context.Context, splitIDs []string) ([]storage.SplitDetail, error) {
	if len(splitIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?, ", len(splitIDs)-1) + "?"
	args := make([]any, len(splitIDs))
	for i, id := range splitIDs {
		args[i] = id
	}

	rows, err := u.tx.QueryContext(ctx,
		`SELECT sp.`+splitColumnsAliased("sp")+`, e.payer_id, e.group_id, e.currency, e.deleted
		 FROM expense_splits sp
		 JOIN expenses e ON e.id = sp.expense_id
		 WHERE sp.id IN (`+placeholders+`)
		 ORDER BY sp.id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get split details: %w", err)
	}
	defer rows.Close()

	return scanSplitDetails(rows)
}

// InsertSettlement writes a settlement row, populating missing ID and
// timestamps.
func (u *unitOfWork) InsertSettlement(ctx context.Context, settlement *models.Settlement) error {
	if settlement.ID == "" {
		settlement.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if settlement.CreatedAt == 0 {
		settlement.CreatedAt = now
	}
	settlement.UpdatedAt = now

	_, err := u.tx.ExecContext(ctx,
		`INSERT INTO settlements (`+settlementColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		settlement.ID, settlement.GroupID, settlement.PayerID, settlement.RecipientID,
		settlement.Amount, settlement.Currency, string(settlement.Status),
		settlement.Note, settlement.CreatedAt, settlement.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

// SettleSplits conditionally marks splits settled, keyed on settled = 0.
// A split already claimed by a concurrent settlement is skipped, so the
// returned IDs tell the caller exactly what this settlement won.
func (u *unitOfWork) SettleSplits(ctx context.Context, splitIDs []string, settlementID string) ([]string, error) {
	var settled []string
	for _, id := range splitIDs {
		res, err := u.tx.ExecContext(ctx,
			"UPDATE expense_splits SET settled = 1, settlement_id = ? WHERE id = ? AND settled = 0",
			settlementID, id,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to settle split %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n > 0 {
			settled = append(settled, id)
		}
	}
	return settled, nil
}

// UnsettledSplitCount reports how many splits of an expense remain
// unsettled, observing this transaction's own writes.
func (u *unitOfWork) UnsettledSplitCount(ctx context.Context, expenseID string) (int, error) {
	var count int
	err := u.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM expense_splits WHERE expense_id = ? AND settled = 0",
		expenseID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsettled splits: %w", err)
	}
	return count, nil
}

// MarkExpenseSettled flags an expense whose splits are all settled.
func (u *unitOfWork) MarkExpenseSettled(ctx context.Context, expenseID string) error {
	_, err := u.tx.ExecContext(ctx,
		"UPDATE expenses SET settled = 1, updated_at = ? WHERE id = ?",
		time.Now().Unix(), expenseID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark expense settled: %w", err)
	}
	return nil
}

// TransitionSettlement updates a settlement's status only if the current
// status matches from. Returns false when the guard failed.
func (u *unitOfWork) TransitionSettlement(ctx context.Context, settlementID string, from, to models.SettlementStatus) (bool, error) {
	res, err := u.tx.ExecContext(ctx,
		"UPDATE settlements SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), time.Now().Unix(), settlementID, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition settlement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	// Distinguish a failed guard from a missing row.
	var exists int
	err = u.tx.QueryRowContext(ctx, "SELECT 1 FROM settlements WHERE id = ?", settlementID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, models.NotFound("settlement", settlementID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check settlement existence: %w", err)
	}
	return false, nil
}
