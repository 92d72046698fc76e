package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/models"
	"github.com/tallyhq/tally/internal/storage"
)

const splitColumns = "id, expense_id, owing_user_id, amount, percentage, settled, settlement_id"

const expenseColumns = "id, group_id, payer_id, description, amount, currency, split_method, deleted, settled, created_at, updated_at"

// CreateExpense persists an expense and its splits in one transaction.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense, splits []models.ExpenseSplit) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if expense.CreatedAt == 0 {
		expense.CreatedAt = now
	}
	expense.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.GroupID, expense.PayerID, expense.Description,
		expense.Amount, expense.Currency, string(expense.SplitMethod),
		boolToInt(expense.Deleted), boolToInt(expense.Settled),
		expense.CreatedAt, expense.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	if err := insertSplits(ctx, tx, expense.ID, splits); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetExpense retrieves an expense and its splits. Soft-deleted expenses
// are reported as not found.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, []models.ExpenseSplit, error) {
	expense := &models.Expense{}
	var method string
	var deleted, settled int
	err := s.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND deleted = 0`,
		expenseID,
	).Scan(&expense.ID, &expense.GroupID, &expense.PayerID, &expense.Description,
		&expense.Amount, &expense.Currency, &method, &deleted, &settled,
		&expense.CreatedAt, &expense.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, models.NotFound("expense", expenseID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get expense: %w", err)
	}
	expense.SplitMethod = models.SplitMethod(method)
	expense.Deleted = deleted != 0
	expense.Settled = settled != 0

	splits, err := s.querySplits(ctx,
		`SELECT `+splitColumns+` FROM expense_splits WHERE expense_id = ? ORDER BY owing_user_id`,
		expenseID,
	)
	if err != nil {
		return nil, nil, err
	}
	return expense, splits, nil
}

// ReplaceExpense updates the expense row and swaps its splits, atomically.
// Refused with ConflictError if any split is already settled: the guard
// runs inside the transaction, so a settlement committing concurrently
// cannot be orphaned by the split swap.
func (s *SQLiteStore) ReplaceExpense(ctx context.Context, expense *models.Expense, splits []models.ExpenseSplit) error {
	expense.UpdatedAt = time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := guardUnsettled(ctx, tx, expense.ID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE expenses
		 SET group_id = ?, payer_id = ?, description = ?, amount = ?, currency = ?,
		     split_method = ?, settled = 0, updated_at = ?
		 WHERE id = ? AND deleted = 0`,
		expense.GroupID, expense.PayerID, expense.Description, expense.Amount,
		expense.Currency, string(expense.SplitMethod), expense.UpdatedAt, expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return models.NotFound("expense", expense.ID)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM expense_splits WHERE expense_id = ?", expense.ID); err != nil {
		return fmt.Errorf("failed to delete old splits: %w", err)
	}
	if err := insertSplits(ctx, tx, expense.ID, splits); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SoftDeleteExpense marks an expense deleted. The splits stay stored but
// every read in this package filters them out alongside the expense.
// Refused with ConflictError if any split is already settled.
func (s *SQLiteStore) SoftDeleteExpense(ctx context.Context, expenseID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := guardUnsettled(ctx, tx, expenseID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE expenses SET deleted = 1, updated_at = ? WHERE id = ? AND deleted = 0",
		time.Now().Unix(), expenseID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return models.NotFound("expense", expenseID)
	}
	return tx.Commit()
}

// guardUnsettled fails with ConflictError when the expense has any settled
// split. Callers run it inside the same transaction as the mutation it
// protects.
func guardUnsettled(ctx context.Context, tx *sql.Tx, expenseID string) error {
	var settled int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM expense_splits WHERE expense_id = ? AND settled = 1",
		expenseID,
	).Scan(&settled)
	if err != nil {
		return fmt.Errorf("failed to count settled splits: %w", err)
	}
	if settled > 0 {
		return models.Conflictf("expense %s has settled splits and cannot be modified", expenseID)
	}
	return nil
}

// ListGroupExpenses retrieves the non-deleted expenses of a group, newest
// first, with all of their splits.
func (s *SQLiteStore) ListGroupExpenses(ctx context.Context, groupID string) ([]models.Expense, []models.ExpenseSplit, error) {
	expenses, err := s.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE group_id = ? AND deleted = 0
		 ORDER BY created_at DESC, id`,
		groupID,
	)
	if err != nil {
		return nil, nil, err
	}

	splits, err := s.querySplits(ctx,
		`SELECT sp.`+splitColumnsAliased("sp")+`
		 FROM expense_splits sp
		 JOIN expenses e ON e.id = sp.expense_id
		 WHERE e.group_id = ? AND e.deleted = 0
		 ORDER BY sp.expense_id, sp.owing_user_id`,
		groupID,
	)
	if err != nil {
		return nil, nil, err
	}
	return expenses, splits, nil
}

// ListPairRecords retrieves the expenses, splits, and settlements that
// involve both users. An empty groupID means all scopes.
func (s *SQLiteStore) ListPairRecords(ctx context.Context, userA, userB, groupID string) ([]models.Expense, []models.ExpenseSplit, []models.Settlement, error) {
	expQuery := `SELECT ` + expenseColumns + ` FROM expenses
		 WHERE deleted = 0 AND payer_id IN (?, ?)`
	args := []any{userA, userB}
	if groupID != "" {
		expQuery += " AND group_id = ?"
		args = append(args, groupID)
	}
	expQuery += " ORDER BY created_at DESC, id"

	expenses, err := s.queryExpenses(ctx, expQuery, args...)
	if err != nil {
		return nil, nil, nil, err
	}

	splitQuery := `SELECT sp.` + splitColumnsAliased("sp") + `
		 FROM expense_splits sp
		 JOIN expenses e ON e.id = sp.expense_id
		 WHERE e.deleted = 0
		   AND ((e.payer_id = ? AND sp.owing_user_id = ?) OR (e.payer_id = ? AND sp.owing_user_id = ?))`
	splitArgs := []any{userA, userB, userB, userA}
	if groupID != "" {
		splitQuery += " AND e.group_id = ?"
		splitArgs = append(splitArgs, groupID)
	}

	splits, err := s.querySplits(ctx, splitQuery, splitArgs...)
	if err != nil {
		return nil, nil, nil, err
	}

	stQuery := `SELECT ` + settlementColumns + ` FROM settlements
		 WHERE ((payer_id = ? AND recipient_id = ?) OR (payer_id = ? AND recipient_id = ?))`
	stArgs := []any{userA, userB, userB, userA}
	if groupID != "" {
		stQuery += " AND group_id = ?"
		stArgs = append(stArgs, groupID)
	}
	stQuery += " ORDER BY created_at DESC, id"

	settlements, err := s.querySettlements(ctx, stQuery, stArgs...)
	if err != nil {
		return nil, nil, nil, err
	}
	return expenses, splits, settlements, nil
}

// ListUserSplitDetails retrieves every split of a non-deleted expense
// where the user is the payer or the ower.
func (s *SQLiteStore) ListUserSplitDetails(ctx context.Context, userID string) ([]storage.SplitDetail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sp.`+splitColumnsAliased("sp")+`, e.payer_id, e.group_id, e.currency, e.deleted
		 FROM expense_splits sp
		 JOIN expenses e ON e.id = sp.expense_id
		 WHERE e.deleted = 0 AND (e.payer_id = ? OR sp.owing_user_id = ?)
		 ORDER BY sp.expense_id, sp.owing_user_id`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user splits: %w", err)
	}
	defer rows.Close()

	return scanSplitDetails(rows)
}

func insertSplits(ctx context.Context, tx *sql.Tx, expenseID string, splits []models.ExpenseSplit) error {
	for i := range splits {
		sp := &splits[i]
		if sp.ID == "" {
			sp.ID = uuid.New().String()
		}
		sp.ExpenseID = expenseID

		var settlementID any
		if sp.SettlementID != "" {
			settlementID = sp.SettlementID
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expense_splits (`+splitColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sp.ID, sp.ExpenseID, sp.OwingUserID, sp.Amount, sp.Percentage,
			boolToInt(sp.Settled), settlementID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert split: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) queryExpenses(ctx context.Context, query string, args ...any) ([]models.Expense, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		var e models.Expense
		var method string
		var deleted, settled int
		if err := rows.Scan(&e.ID, &e.GroupID, &e.PayerID, &e.Description,
			&e.Amount, &e.Currency, &method, &deleted, &settled,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		e.SplitMethod = models.SplitMethod(method)
		e.Deleted = deleted != 0
		e.Settled = settled != 0
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}
	return expenses, nil
}

func (s *SQLiteStore) querySplits(ctx context.Context, query string, args ...any) ([]models.ExpenseSplit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query splits: %w", err)
	}
	defer rows.Close()

	var splits []models.ExpenseSplit
	for rows.Next() {
		sp, err := scanSplit(rows)
		if err != nil {
			return nil, err
		}
		splits = append(splits, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate splits: %w", err)
	}
	return splits, nil
}

func scanSplit(rows *sql.Rows) (models.ExpenseSplit, error) {
	var sp models.ExpenseSplit
	var settled int
	var settlementID sql.NullString
	if err := rows.Scan(&sp.ID, &sp.ExpenseID, &sp.OwingUserID, &sp.Amount,
		&sp.Percentage, &settled, &settlementID); err != nil {
		return sp, fmt.Errorf("failed to scan split: %w", err)
	}
	sp.Settled = settled != 0
	if settlementID.Valid {
		sp.SettlementID = settlementID.String
	}
	return sp, nil
}

func scanSplitDetails(rows *sql.Rows) ([]storage.SplitDetail, error) {
	var details []storage.SplitDetail
	for rows.Next() {
		var d storage.SplitDetail
		var settled, deleted int
		var settlementID sql.NullString
		if err := rows.Scan(&d.Split.ID, &d.Split.ExpenseID, &d.Split.OwingUserID,
			&d.Split.Amount, &d.Split.Percentage, &settled, &settlementID,
			&d.ExpensePayerID, &d.ExpenseGroupID, &d.ExpenseCurrency, &deleted); err != nil {
			return nil, fmt.Errorf("failed to scan split detail: %w", err)
		}
		d.Split.Settled = settled != 0
		if settlementID.Valid {
			d.Split.SettlementID = settlementID.String
		}
		d.ExpenseDeleted = deleted != 0
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate split details: %w", err)
	}
	return details, nil
}

// splitColumnsAliased prefixes each split column with a table alias for
// joined queries.
func splitColumnsAliased(alias string) string {
	return "id, " + alias + ".expense_id, " + alias + ".owing_user_id, " +
		alias + ".amount, " + alias + ".percentage, " + alias + ".settled, " +
		alias + ".settlement_id"
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
