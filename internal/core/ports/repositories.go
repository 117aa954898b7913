package ports

import (
	"context"

	"agropay/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TransactionRepository defines persistence operations for transactions.
// Methods accepting pgx.Tx are used inside transaction blocks so a status
// transition and its balance effect commit or roll back together.
type TransactionRepository interface {
	// Create inserts a transaction and fills in its generated ID.
	Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error
	GetByID(ctx context.Context, id int64) (*domain.Transaction, error)
	// GetByCheckoutRequestID returns nil, nil when no transaction carries the
	// correlation id; stale callbacks are a normal condition, not an error.
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Transaction, error)
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	// SetCheckoutRequestID stores the provider correlation id after a
	// successful STK push initiation.
	SetCheckoutRequestID(ctx context.Context, id int64, checkoutRequestID string) error
	// MarkFailed records a creation-path failure. The guard on non-terminal
	// status makes it safe against late callbacks racing the failure path.
	MarkFailed(ctx context.Context, id int64, resultDesc string) error
	// TransitionIfActive atomically moves a transaction to the given status
	// only if its current status is non-terminal. Returns false when the row
	// was already terminal or does not exist. This single conditional UPDATE
	// is the idempotency guard shared by the callback and admin paths.
	TransitionIfActive(ctx context.Context, tx pgx.Tx, id int64, status domain.TransactionStatus, receipt, resultDesc *string) (bool, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	UserID   int64
	Status   *domain.TransactionStatus
	Type     *domain.TransactionType
	Page     int
	PageSize int
}

// UserRepository defines persistence operations for the balance ledger.
// Balance mutations are expressed as atomic increments/decrements at the
// storage layer, never as application-level read-modify-write.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	// CreditBalance adds amount to the user's balance.
	CreditBalance(ctx context.Context, tx pgx.Tx, userID int64, amount decimal.Decimal) error
	// DebitBalance subtracts amount only if the current balance covers it.
	// Returns false (and leaves the balance untouched) when it does not.
	DebitBalance(ctx context.Context, tx pgx.Tx, userID int64, amount decimal.Decimal) (bool, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
