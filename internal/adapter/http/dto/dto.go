package dto

import (
	"time"

	"agropay/internal/core/domain"

	"github.com/shopspring/decimal"
)

// DepositRequest is the payload for initiating an STK push deposit.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Phone  string          `json:"phone_number" binding:"required"`
}

// WithdrawalRequest is the payload for requesting a payout.
type WithdrawalRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Phone  string          `json:"phone_number" binding:"required"`
}

// UpdateStatusRequest is the administrative status override payload.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// TransactionResponse is the client-facing transaction shape.
type TransactionResponse struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	Amount            decimal.Decimal `json:"amount"`
	Type              string          `json:"type"`
	PhoneNumber       string          `json:"phone_number"`
	Provider          string          `json:"provider"`
	Status            string          `json:"status"`
	CheckoutRequestID *string         `json:"checkout_request_id,omitempty"`
	MpesaReceipt      *string         `json:"mpesa_receipt,omitempty"`
	ResultDesc        *string         `json:"result_desc,omitempty"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
}

// NewTransactionResponse maps a domain transaction to its API shape.
func NewTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                t.ID,
		UserID:            t.UserID,
		Amount:            t.Amount,
		Type:              string(t.Type),
		PhoneNumber:       t.PhoneNumber,
		Provider:          t.Provider,
		Status:            string(t.Status),
		CheckoutRequestID: t.CheckoutRequestID,
		MpesaReceipt:      t.MpesaReceipt,
		ResultDesc:        t.ResultDesc,
		CreatedAt:         t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// TransactionListResponse wraps a page of transactions.
type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	Total        int64                 `json:"total"`
	Page         int                   `json:"page"`
	PageSize     int                   `json:"page_size"`
}

// BalanceResponse is the wallet balance shape.
type BalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// StkCallbackAck is the acknowledgment body the provider expects. ResultCode
// zero tells the provider the delivery is settled; non-zero asks for a
// redelivery.
type StkCallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}
