package ports

import (
	"context"
	"time"

	"agropay/internal/core/domain"

	"github.com/shopspring/decimal"
)

// PaymentService owns the full transaction lifecycle: creating deposits and
// withdrawals, reconciling provider callbacks and applying balance effects
// exactly once.
type PaymentService interface {
	CreateDeposit(ctx context.Context, req DepositRequest) (*domain.Transaction, error)
	CreateWithdrawal(ctx context.Context, req WithdrawalRequest) (*domain.Transaction, error)
	// HandleCallback processes a raw provider callback. A nil return means
	// the delivery was handled (including malformed, unknown and duplicate
	// cases) and the provider should receive the success acknowledgment.
	// A non-nil return is a true internal fault and tells the provider to
	// redeliver.
	HandleCallback(ctx context.Context, raw []byte) error
	// UpdateStatus is the administrative override path. It shares the
	// terminal-state idempotency guard with the callback path; updating an
	// already-terminal transaction is a no-op returning the current row.
	UpdateStatus(ctx context.Context, txID int64, status domain.TransactionStatus) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, userID, txID int64) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
}

// DepositRequest holds validated input for deposit creation.
type DepositRequest struct {
	UserID int64
	Amount decimal.Decimal
	Phone  string
}

// WithdrawalRequest holds validated input for withdrawal creation.
type WithdrawalRequest struct {
	UserID int64
	Amount decimal.Decimal
	Phone  string
}

// TokenService handles JWT token operations for the internal API surface.
// Tokens are issued by the marketplace application; this service validates
// them (and can mint them for tests and tooling).
type TokenService interface {
	Generate(userID int64, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID int64
	Role   string
}
