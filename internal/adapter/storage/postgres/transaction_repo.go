package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"agropay/internal/core/domain"
	"agropay/internal/core/ports"
	"agropay/pkg/apperror"

	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, user_id, amount, type, phone_number, provider, status,
	checkout_request_id, mpesa_receipt, result_desc, created_at, updated_at`

// TransactionRepository implements ports.TransactionRepository on Postgres.
type TransactionRepository struct {
	pool Pool
}

func NewTransactionRepository(pool Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `
		INSERT INTO transactions (user_id, amount, type, phone_number, provider, status, result_desc)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := tx.QueryRow(ctx, query,
		t.UserID, t.Amount, t.Type, t.PhoneNumber, t.Provider, t.Status, t.ResultDesc,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE id = $1`, transactionColumns)

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.ErrTransactionNotFound()
		}
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

// GetByCheckoutRequestID returns nil, nil when no row carries the id. A
// callback for an unknown checkout request is not an error condition.
func (r *TransactionRepository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE checkout_request_id = $1`, transactionColumns)

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, checkoutRequestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction by checkout request id: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	conditions := []string{"user_id = $1"}
	args := []any{params.UserID}

	if params.Status != nil {
		args = append(args, *params.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if params.Type != nil {
		args = append(args, *params.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM transactions WHERE %s`, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	args = append(args, params.PageSize, offset)
	listQuery := fmt.Sprintf(
		`SELECT %s FROM transactions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, len(args)-1, len(args),
	)

	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, params.PageSize)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transactions: %w", err)
	}

	return transactions, total, nil
}

func (r *TransactionRepository) SetCheckoutRequestID(ctx context.Context, id int64, checkoutRequestID string) error {
	query := `UPDATE transactions SET checkout_request_id = $1, updated_at = NOW() WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, checkoutRequestID, id)
	if err != nil {
		return fmt.Errorf("set checkout request id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrTransactionNotFound()
	}
	return nil
}

// MarkFailed only touches non-terminal rows so a late callback that already
// settled the transaction cannot be overwritten by the creation failure path.
func (r *TransactionRepository) MarkFailed(ctx context.Context, id int64, resultDesc string) error {
	query := `
		UPDATE transactions
		SET status = 'failed', result_desc = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'processing')`

	if _, err := r.pool.Exec(ctx, query, resultDesc, id); err != nil {
		return fmt.Errorf("mark transaction failed: %w", err)
	}
	return nil
}

// TransitionIfActive is the single idempotency guard for settlement. The
// WHERE clause restricts the update to non-terminal rows; a zero row count
// means someone else already settled the transaction.
func (r *TransactionRepository) TransitionIfActive(ctx context.Context, tx pgx.Tx, id int64, status domain.TransactionStatus, receipt, resultDesc *string) (bool, error) {
	query := `
		UPDATE transactions
		SET status = $1,
		    mpesa_receipt = COALESCE($2, mpesa_receipt),
		    result_desc = COALESCE($3, result_desc),
		    updated_at = NOW()
		WHERE id = $4 AND status IN ('pending', 'processing')`

	tag, err := tx.Exec(ctx, query, status, receipt, resultDesc, id)
	if err != nil {
		return false, fmt.Errorf("transition transaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID, &t.UserID, &t.Amount, &t.Type, &t.PhoneNumber, &t.Provider, &t.Status,
		&t.CheckoutRequestID, &t.MpesaReceipt, &t.ResultDesc, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
