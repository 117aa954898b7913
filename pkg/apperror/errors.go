package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

// Validation returns a generic request validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("VAL_001", "Amount must be greater than zero", http.StatusBadRequest)
}

func ErrInvalidStatus(status string) *AppError {
	return New("VAL_001", fmt.Sprintf("Invalid transaction status: %s", status), http.StatusBadRequest)
}

func ErrInvalidPhoneFormat(phone string) *AppError {
	return New("VAL_002", fmt.Sprintf("Invalid phone number format: %s", phone), http.StatusBadRequest)
}

// ---- Payment Business Logic (PAY) ----

func ErrInsufficientFunds() *AppError {
	return New("PAY_001", "Insufficient balance for withdrawal", http.StatusPaymentRequired)
}

func ErrTransactionNotFound() *AppError {
	return New("PAY_002", "Transaction not found", http.StatusNotFound)
}

func ErrUserNotFound() *AppError {
	return New("PAY_003", "User not found", http.StatusNotFound)
}

// ---- Mobile Money Gateway (GW) ----

// ErrGatewayAuth indicates the provider rejected our credentials or the token
// endpoint was unreachable.
func ErrGatewayAuth(err error) *AppError {
	return Wrap("GW_001", "Payment provider authentication failed", http.StatusBadGateway, err)
}

// ErrGatewayRequest carries the provider's own error message where available.
func ErrGatewayRequest(providerMsg string, err error) *AppError {
	msg := "Payment provider request failed"
	if providerMsg != "" {
		msg = fmt.Sprintf("Payment provider request failed: %s", providerMsg)
	}
	return Wrap("GW_002", msg, http.StatusBadGateway, err)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("AUTH_002", "Insufficient privileges", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an unexpected fault as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
