package postgres

import (
	"context"
	"errors"
	"fmt"

	"agropay/internal/core/domain"
	"agropay/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// UserRepository implements ports.UserRepository. Balance mutations are
// single atomic UPDATE statements; the current balance is never read into
// the application before writing.
type UserRepository struct {
	pool Pool
}

func NewUserRepository(pool Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT id, phone_number, balance, created_at, updated_at FROM users WHERE id = $1`

	var u domain.User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.PhoneNumber, &u.Balance, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.ErrUserNotFound()
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) CreditBalance(ctx context.Context, tx pgx.Tx, userID int64, amount decimal.Decimal) error {
	query := `UPDATE users SET balance = balance + $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, amount, userID)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrUserNotFound()
	}
	return nil
}

// DebitBalance returns false without touching the row when the balance does
// not cover the amount. The balance check and the decrement are one
// statement, so concurrent withdrawals cannot both pass the check.
func (r *UserRepository) DebitBalance(ctx context.Context, tx pgx.Tx, userID int64, amount decimal.Decimal) (bool, error) {
	query := `
		UPDATE users
		SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1`

	tag, err := tx.Exec(ctx, query, amount, userID)
	if err != nil {
		return false, fmt.Errorf("debit balance: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
