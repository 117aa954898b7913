package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	e := New("PAY_001", "Insufficient balance for withdrawal", http.StatusPaymentRequired)
	assert.Equal(t, "[PAY_001] Insufficient balance for withdrawal", e.Error())

	wrapped := Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, errors.New("pool closed"))
	assert.Equal(t, "[SYS_001] Internal server error: pool closed", wrapped.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	e := InternalError(fmt.Errorf("pinging database: %w", inner))

	assert.True(t, errors.Is(e, inner))

	var appErr *AppError
	require.True(t, errors.As(error(e), &appErr))
	assert.Equal(t, "SYS_001", appErr.Code)
}

func TestConstructors_CodesAndStatuses(t *testing.T) {
	tests := []struct {
		err        *AppError
		wantCode   string
		wantStatus int
	}{
		{ErrInvalidAmount(), "VAL_001", http.StatusBadRequest},
		{ErrInvalidPhoneFormat("12345"), "VAL_002", http.StatusBadRequest},
		{ErrInsufficientFunds(), "PAY_001", http.StatusPaymentRequired},
		{ErrTransactionNotFound(), "PAY_002", http.StatusNotFound},
		{ErrUserNotFound(), "PAY_003", http.StatusNotFound},
		{ErrGatewayAuth(errors.New("401")), "GW_001", http.StatusBadGateway},
		{ErrGatewayRequest("invalid shortcode", nil), "GW_002", http.StatusBadGateway},
		{ErrInvalidToken(), "AUTH_001", http.StatusUnauthorized},
		{ErrForbidden(), "AUTH_002", http.StatusForbidden},
		{ErrRateLimitExceeded(), "RATE_001", http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.wantCode, tt.err.Code)
		assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus)
	}
}

func TestErrGatewayRequest_ProviderMessage(t *testing.T) {
	e := ErrGatewayRequest("The initiator information is invalid.", nil)
	assert.Contains(t, e.Message, "The initiator information is invalid.")

	plain := ErrGatewayRequest("", nil)
	assert.Equal(t, "Payment provider request failed", plain.Message)
}
