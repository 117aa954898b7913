package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpHandler "agropay/internal/adapter/http/handler"
	"agropay/internal/core/domain"
	"agropay/internal/core/ports"
	"agropay/internal/service"
	"agropay/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	svc          *service.PaymentService
	transactions *inMemoryTransactionRepo
	users        *inMemoryUserRepo
	gateway      *scriptedGateway
}

func newEnv(t *testing.T) *env {
	t.Helper()
	transactions := newInMemoryTransactionRepo()
	users := newInMemoryUserRepo()
	gateway := newScriptedGateway()
	svc := service.NewPaymentService(
		transactions, users, &inMemoryTransactor{}, gateway, newInMemoryDedupe(), zerolog.Nop(),
	)
	return &env{svc: svc, transactions: transactions, users: users, gateway: gateway}
}

func successCallbackFor(txn *domain.Transaction, receipt string) []byte {
	return encodeCallback(ports.CallbackResult{
		CheckoutRequestID: *txn.CheckoutRequestID,
		Success:           true,
		ResultCode:        "0",
		ResultDesc:        "The service request is processed successfully.",
		Amount:            txn.Amount,
		ReceiptNumber:     receipt,
	})
}

func TestDepositLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.users.addUser(42, decimal.Zero)

	txn, err := e.svc.CreateDeposit(ctx, ports.DepositRequest{
		UserID: 42,
		Amount: decimal.NewFromInt(500),
		Phone:  "0712345678",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)
	require.NotNil(t, txn.CheckoutRequestID)

	balance, err := e.svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "no credit before the callback arrives")

	require.NoError(t, e.svc.HandleCallback(ctx, successCallbackFor(txn, "REC0001")))

	settled, err := e.transactions.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, settled.Status)
	require.NotNil(t, settled.MpesaReceipt)
	assert.Equal(t, "REC0001", *settled.MpesaReceipt)

	balance, err = e.svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(500)))
}

func TestDepositCallbackRedelivery(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.users.addUser(42, decimal.Zero)

	txn, err := e.svc.CreateDeposit(ctx, ports.DepositRequest{
		UserID: 42, Amount: decimal.NewFromInt(500), Phone: "0712345678",
	})
	require.NoError(t, err)

	raw := successCallbackFor(txn, "REC0001")
	require.NoError(t, e.svc.HandleCallback(ctx, raw))
	require.NoError(t, e.svc.HandleCallback(ctx, raw))
	require.NoError(t, e.svc.HandleCallback(ctx, raw))

	balance, err := e.svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(500)), "redeliveries must credit exactly once")
}

func TestDepositFailureCallback(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.users.addUser(42, decimal.Zero)

	txn, err := e.svc.CreateDeposit(ctx, ports.DepositRequest{
		UserID: 42, Amount: decimal.NewFromInt(500), Phone: "0712345678",
	})
	require.NoError(t, err)

	require.NoError(t, e.svc.HandleCallback(ctx, encodeCallback(ports.CallbackResult{
		CheckoutRequestID: *txn.CheckoutRequestID,
		Success:           false,
		ResultCode:        "1032",
		ResultDesc:        "Request cancelled by user",
	})))

	settled, err := e.transactions.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, settled.Status)
	require.NotNil(t, settled.ResultDesc)
	assert.Equal(t, "Request cancelled by user", *settled.ResultDesc)

	balance, err := e.svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestDepositGatewayFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.users.addUser(42, decimal.Zero)
	e.gateway.failPush = true

	_, err := e.svc.CreateDeposit(ctx, ports.DepositRequest{
		UserID: 42, Amount: decimal.NewFromInt(500), Phone: "0712345678",
	})
	require.Error(t, err)

	// The failed attempt stays on record.
	list, total, listErr := e.svc.ListTransactions(ctx, ports.TransactionListParams{UserID: 42, Page: 1, PageSize: 10})
	require.NoError(t, listErr)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, domain.TransactionStatusFailed, list[0].Status)
}

func TestWithdrawalInsufficientFunds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.users.addUser(42, decimal.NewFromInt(100))

	_, err := e.svc.CreateWithdrawal(ctx, ports.WithdrawalRequest{
		UserID: 42, Amount: decimal.NewFromInt(200), Phone: "0712345678",
	})

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_001", appErr.Code)

	// Balance untouched, failed attempt recorded.
	balance, err := e.svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)))

	list, total, err := e.svc.ListTransactions(ctx, ports.TransactionListParams{UserID: 42, Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, domain.TransactionStatusFailed, list[0].Status)
}

func TestWithdrawalDebitsUpFront(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.users.addUser(42, decimal.NewFromInt(300))

	txn, err := e.svc.CreateWithdrawal(ctx, ports.WithdrawalRequest{
		UserID: 42, Amount: decimal.NewFromInt(200), Phone: "0712345678",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusProcessing, txn.Status)

	balance, err := e.svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)), "funds leave the balance before the payout settles")
}

func TestAdminOverrideCreditsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.users.addUser(42, decimal.Zero)

	txn, err := e.svc.CreateDeposit(ctx, ports.DepositRequest{
		UserID: 42, Amount: decimal.NewFromInt(500), Phone: "0712345678",
	})
	require.NoError(t, err)

	// Admin completes the stuck deposit by hand.
	updated, err := e.svc.UpdateStatus(ctx, txn.ID, domain.TransactionStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, updated.Status)

	// The late callback must not credit again.
	require.NoError(t, e.svc.HandleCallback(ctx, successCallbackFor(txn, "REC0001")))
	// Nor a second admin update.
	again, err := e.svc.UpdateStatus(ctx, txn.ID, domain.TransactionStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, again.Status)

	balance, err := e.svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(500)))
}

func TestDepositOverHTTP(t *testing.T) {
	e := newEnv(t)
	e.users.addUser(42, decimal.Zero)
	tokenSvc := service.NewTokenService("integration-secret", time.Hour)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentSvc: e.svc,
		TokenSvc:   tokenSvc,
		Logger:     zerolog.Nop(),
	})

	token, _, err := tokenSvc.Generate(42, "user")
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]any{"amount": 500, "phone_number": "0712345678"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/deposit", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data struct {
			ID                int64  `json:"id"`
			Status            string `json:"status"`
			CheckoutRequestID string `json:"checkout_request_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Data.Status)
	assert.NotEmpty(t, resp.Data.CheckoutRequestID)

	// Provider delivers the confirmation.
	txn, err := e.transactions.GetByID(context.Background(), resp.Data.ID)
	require.NoError(t, err)
	cbReq := httptest.NewRequest(http.MethodPost, "/api/v1/payments/mpesa/callback",
		bytes.NewReader(successCallbackFor(txn, "REC9000")))
	cbW := httptest.NewRecorder()
	router.ServeHTTP(cbW, cbReq)

	require.Equal(t, http.StatusOK, cbW.Code)
	assert.Contains(t, cbW.Body.String(), `"ResultCode":0`)

	balance, err := e.svc.GetBalance(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(500)))
}
