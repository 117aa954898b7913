package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the direction of a money movement.
type TransactionType string

const (
	TransactionTypeDeposit      TransactionType = "deposit"
	TransactionTypeWithdrawal   TransactionType = "withdrawal"
	TransactionTypeOrderPayment TransactionType = "order_payment"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeOrderPayment:
		return true
	}
	return false
}

// TransactionStatus represents the lifecycle state of a transaction.
// Allowed transitions: pending -> processing -> {completed, failed}.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
)

// Valid reports whether s is a known transaction status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusProcessing,
		TransactionStatusCompleted, TransactionStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true if the status allows no further transitions.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// Transaction is one attempted movement of money. Rows are never deleted;
// failed attempts remain as audit records.
type Transaction struct {
	ID                int64             `json:"id"`
	UserID            int64             `json:"user_id"`
	Amount            decimal.Decimal   `json:"amount"`
	Type              TransactionType   `json:"type"`
	PhoneNumber       string            `json:"phone_number"`
	Provider          string            `json:"provider"`
	Status            TransactionStatus `json:"status"`
	CheckoutRequestID *string           `json:"checkout_request_id,omitempty"` // provider correlation id, unique when set
	MpesaReceipt      *string           `json:"mpesa_receipt,omitempty"`
	ResultDesc        *string           `json:"result_desc,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status.IsTerminal()
}
