package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"agropay/internal/core/domain"
	"agropay/internal/core/ports"
	"agropay/internal/core/ports/mocks"
	"agropay/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeChecker struct {
	name string
	err  error
}

func (f fakeChecker) Ping(ctx context.Context) error { return f.err }
func (f fakeChecker) Name() string                   { return f.name }

func setupTestRouter(t *testing.T) (*gin.Engine, *mocks.MockPaymentService, *mocks.MockTokenService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	paymentSvc := mocks.NewMockPaymentService(ctrl)
	tokenSvc := mocks.NewMockTokenService(ctrl)

	router := SetupRouter(RouterDeps{
		PaymentSvc:     paymentSvc,
		TokenSvc:       tokenSvc,
		HealthCheckers: []ports.HealthChecker{fakeChecker{name: "postgresql"}},
		Logger:         zerolog.Nop(),
	})
	return router, paymentSvc, tokenSvc
}

func authAsUser(tokenSvc *mocks.MockTokenService, userID int64, role string) {
	tokenSvc.EXPECT().Validate("good-token").
		Return(&ports.TokenClaims{UserID: userID, Role: role}, nil).AnyTimes()
}

func doRequest(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestDeposit_Success(t *testing.T) {
	router, paymentSvc, tokenSvc := setupTestRouter(t)
	authAsUser(tokenSvc, 42, "user")

	paymentSvc.EXPECT().CreateDeposit(gomock.Any(), gomock.Cond(func(req ports.DepositRequest) bool {
		return req.UserID == 42 && req.Amount.Equal(decimal.NewFromInt(500)) && req.Phone == "0712345678"
	})).Return(&domain.Transaction{
		ID:     7,
		UserID: 42,
		Amount: decimal.NewFromInt(500),
		Type:   domain.TransactionTypeDeposit,
		Status: domain.TransactionStatusPending,
	}, nil)

	w := doRequest(router, http.MethodPost, "/api/v1/payments/deposit", "good-token",
		gin.H{"amount": 500, "phone_number": "0712345678"})

	assert.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Data struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(7), body.Data.ID)
	assert.Equal(t, "pending", body.Data.Status)
	assert.NotEmpty(t, body.RequestID)
}

func TestDeposit_MissingToken(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/payments/deposit", "",
		gin.H{"amount": 500, "phone_number": "0712345678"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "AUTH_001")
}

func TestDeposit_InvalidBody(t *testing.T) {
	router, _, tokenSvc := setupTestRouter(t)
	authAsUser(tokenSvc, 42, "user")

	w := doRequest(router, http.MethodPost, "/api/v1/payments/deposit", "good-token",
		gin.H{"phone_number": "0712345678"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VAL_001")
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	router, paymentSvc, tokenSvc := setupTestRouter(t)
	authAsUser(tokenSvc, 42, "user")

	paymentSvc.EXPECT().CreateWithdrawal(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrInsufficientFunds())

	w := doRequest(router, http.MethodPost, "/api/v1/payments/withdraw", "good-token",
		gin.H{"amount": 200, "phone_number": "0712345678"})

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "PAY_001")
}

func TestMpesaCallback_AlwaysOK(t *testing.T) {
	router, paymentSvc, _ := setupTestRouter(t)

	paymentSvc.EXPECT().HandleCallback(gomock.Any(), gomock.Any()).Return(nil)

	w := doRequest(router, http.MethodPost, "/api/v1/payments/mpesa/callback", "",
		gin.H{"Body": gin.H{"stkCallback": gin.H{"CheckoutRequestID": "ws_1", "ResultCode": 0}}})

	assert.Equal(t, http.StatusOK, w.Code)

	var ack struct {
		ResultCode int    `json:"ResultCode"`
		ResultDesc string `json:"ResultDesc"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.Equal(t, 0, ack.ResultCode)
	assert.Equal(t, "Success", ack.ResultDesc)
}

func TestMpesaCallback_InternalFaultRequestsRedelivery(t *testing.T) {
	router, paymentSvc, _ := setupTestRouter(t)

	paymentSvc.EXPECT().HandleCallback(gomock.Any(), gomock.Any()).
		Return(errors.New("database down"))

	w := doRequest(router, http.MethodPost, "/api/v1/payments/mpesa/callback", "",
		gin.H{"Body": gin.H{}})

	// HTTP 200 even on fault; the body's ResultCode drives redelivery.
	assert.Equal(t, http.StatusOK, w.Code)

	var ack struct {
		ResultCode int `json:"ResultCode"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.Equal(t, 1, ack.ResultCode)
}

func TestGetTransaction_NotFound(t *testing.T) {
	router, paymentSvc, tokenSvc := setupTestRouter(t)
	authAsUser(tokenSvc, 42, "user")

	paymentSvc.EXPECT().GetTransaction(gomock.Any(), int64(42), int64(99)).
		Return(nil, apperror.ErrTransactionNotFound())

	w := doRequest(router, http.MethodGet, "/api/v1/transactions/99", "good-token", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "PAY_002")
}

func TestListTransactions_InvalidStatusFilter(t *testing.T) {
	router, _, tokenSvc := setupTestRouter(t)
	authAsUser(tokenSvc, 42, "user")

	w := doRequest(router, http.MethodGet, "/api/v1/transactions?status=refunded", "good-token", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VAL_001")
}

func TestGetBalance(t *testing.T) {
	router, paymentSvc, tokenSvc := setupTestRouter(t)
	authAsUser(tokenSvc, 42, "user")

	paymentSvc.EXPECT().GetBalance(gomock.Any(), int64(42)).
		Return(decimal.NewFromInt(150), nil)

	w := doRequest(router, http.MethodGet, "/api/v1/wallet/balance", "good-token", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "150")
}

func TestUpdateStatus_RequiresAdmin(t *testing.T) {
	router, _, tokenSvc := setupTestRouter(t)
	authAsUser(tokenSvc, 42, "user")

	w := doRequest(router, http.MethodPut, "/api/v1/admin/transactions/7/status", "good-token",
		gin.H{"status": "completed"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "AUTH_002")
}

func TestUpdateStatus_AsAdmin(t *testing.T) {
	router, paymentSvc, tokenSvc := setupTestRouter(t)
	authAsUser(tokenSvc, 1, "admin")

	paymentSvc.EXPECT().UpdateStatus(gomock.Any(), int64(7), domain.TransactionStatusCompleted).
		Return(&domain.Transaction{
			ID:     7,
			UserID: 42,
			Amount: decimal.NewFromInt(500),
			Type:   domain.TransactionTypeDeposit,
			Status: domain.TransactionStatusCompleted,
		}, nil)

	w := doRequest(router, http.MethodPut, "/api/v1/admin/transactions/7/status", "good-token",
		gin.H{"status": "completed"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"completed"`)
}

func TestHealthCheck_Degraded(t *testing.T) {
	ctrl := gomock.NewController(t)
	router := SetupRouter(RouterDeps{
		PaymentSvc: mocks.NewMockPaymentService(ctrl),
		TokenSvc:   mocks.NewMockTokenService(ctrl),
		HealthCheckers: []ports.HealthChecker{
			fakeChecker{name: "postgresql"},
			fakeChecker{name: "redis", err: errors.New("connection refused")},
		},
		Logger: zerolog.Nop(),
	})

	w := doRequest(router, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}
