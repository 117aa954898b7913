package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// STKPushRequest is a domain-level request to prompt a payer's phone.
type STKPushRequest struct {
	Phone         string
	Amount        decimal.Decimal
	TransactionID int64 // embedded in the provider's account-reference field
	Description   string
}

// STKPushResponse is the provider's immediate acknowledgment of an STK push.
// The actual payment outcome arrives later via callback.
type STKPushResponse struct {
	CheckoutRequestID   string
	MerchantRequestID   string
	ResponseCode        string
	ResponseDescription string
}

// CallbackResult holds the outcome fields extracted from a provider callback.
// Amount, ReceiptNumber, PhoneNumber and TransactionDate are only populated
// on success.
type CallbackResult struct {
	CheckoutRequestID string
	Success           bool
	ResultCode        string
	ResultDesc        string
	Amount            decimal.Decimal
	ReceiptNumber     string
	PhoneNumber       string
	TransactionDate   string
}

// PaymentGateway translates domain requests into provider wire calls and
// normalizes provider responses into a stable internal shape. It owns no
// persistent state.
type PaymentGateway interface {
	// Name returns the provider identifier recorded on transactions.
	Name() string
	// InitiateSTKPush acquires an access token and sends the push request.
	// Errors are apperror GW_001/GW_002 (or VAL_002 for a bad phone) and must
	// propagate so the transaction can be marked failed.
	InitiateSTKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error)
	// ParseCallback is pure (no I/O). It returns nil when the payload lacks
	// the expected wrapper: malformed, not attributable to any transaction.
	ParseCallback(raw []byte) *CallbackResult
}

// CallbackDedupe is a best-effort fast path that short-circuits redelivered
// callbacks before they reach the database. The authoritative idempotency
// guard remains the conditional status transition in storage.
type CallbackDedupe interface {
	Seen(ctx context.Context, checkoutRequestID string) (bool, error)
	Mark(ctx context.Context, checkoutRequestID string, ttl time.Duration) error
}
