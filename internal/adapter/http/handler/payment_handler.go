package handler

import (
	"strconv"

	"agropay/internal/adapter/http/dto"
	"agropay/internal/adapter/http/middleware"
	"agropay/internal/core/domain"
	"agropay/internal/core/ports"
	"agropay/pkg/apperror"
	"agropay/pkg/response"

	"github.com/gin-gonic/gin"
)

// PaymentHandler serves the authenticated payment and wallet endpoints.
type PaymentHandler struct {
	svc ports.PaymentService
}

func NewPaymentHandler(svc ports.PaymentService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// Deposit handles POST /api/v1/payments/deposit.
func (h *PaymentHandler) Deposit(c *gin.Context) {
	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation("invalid request body"))
		return
	}

	txn, err := h.svc.CreateDeposit(c.Request.Context(), ports.DepositRequest{
		UserID: middleware.UserID(c),
		Amount: req.Amount,
		Phone:  req.Phone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewTransactionResponse(txn))
}

// Withdraw handles POST /api/v1/payments/withdraw.
func (h *PaymentHandler) Withdraw(c *gin.Context) {
	var req dto.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation("invalid request body"))
		return
	}

	txn, err := h.svc.CreateWithdrawal(c.Request.Context(), ports.WithdrawalRequest{
		UserID: middleware.UserID(c),
		Amount: req.Amount,
		Phone:  req.Phone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewTransactionResponse(txn))
}

// GetTransaction handles GET /api/v1/transactions/:id.
func (h *PaymentHandler) GetTransaction(c *gin.Context) {
	txID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, apperror.Validation("invalid transaction id"))
		return
	}

	txn, err := h.svc.GetTransaction(c.Request.Context(), middleware.UserID(c), txID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewTransactionResponse(txn))
}

// ListTransactions handles GET /api/v1/transactions.
func (h *PaymentHandler) ListTransactions(c *gin.Context) {
	params := ports.TransactionListParams{UserID: middleware.UserID(c)}

	if s := c.Query("status"); s != "" {
		status := domain.TransactionStatus(s)
		if !status.Valid() {
			response.Error(c, apperror.ErrInvalidStatus(s))
			return
		}
		params.Status = &status
	}
	if ty := c.Query("type"); ty != "" {
		txType := domain.TransactionType(ty)
		if !txType.Valid() {
			response.Error(c, apperror.Validation("invalid transaction type: "+ty))
			return
		}
		params.Type = &txType
	}
	params.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	params.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	transactions, total, err := h.svc.ListTransactions(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(transactions))
	for i := range transactions {
		items = append(items, dto.NewTransactionResponse(&transactions[i]))
	}

	response.OK(c, dto.TransactionListResponse{
		Transactions: items,
		Total:        total,
		Page:         params.Page,
		PageSize:     params.PageSize,
	})
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *PaymentHandler) GetBalance(c *gin.Context) {
	balance, err := h.svc.GetBalance(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{Balance: balance})
}

// UpdateStatus handles PUT /api/v1/admin/transactions/:id/status.
func (h *PaymentHandler) UpdateStatus(c *gin.Context) {
	txID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, apperror.Validation("invalid transaction id"))
		return
	}

	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation("invalid request body"))
		return
	}

	txn, err := h.svc.UpdateStatus(c.Request.Context(), txID, domain.TransactionStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewTransactionResponse(txn))
}
