package service

import (
	"context"
	"fmt"
	"time"

	"agropay/internal/core/domain"
	"agropay/internal/core/ports"
	"agropay/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Redelivered callbacks arrive within minutes; the dedupe key only needs to
// outlive the provider's retry schedule.
const dedupeTTL = 24 * time.Hour

// PaymentService implements ports.PaymentService. It owns the transaction
// lifecycle and the exactly-once settlement of balance effects.
type PaymentService struct {
	transactions ports.TransactionRepository
	users        ports.UserRepository
	transactor   ports.DBTransactor
	gateway      ports.PaymentGateway
	dedupe       ports.CallbackDedupe
	logger       zerolog.Logger
}

func NewPaymentService(
	transactions ports.TransactionRepository,
	users ports.UserRepository,
	transactor ports.DBTransactor,
	gateway ports.PaymentGateway,
	dedupe ports.CallbackDedupe,
	logger zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		transactions: transactions,
		users:        users,
		transactor:   transactor,
		gateway:      gateway,
		dedupe:       dedupe,
		logger:       logger.With().Str("component", "payment_service").Logger(),
	}
}

// CreateDeposit records a pending deposit and prompts the payer's phone via
// STK push. The transaction is committed before the gateway call so a crash
// mid-initiation leaves an auditable pending row rather than nothing.
func (s *PaymentService) CreateDeposit(ctx context.Context, req ports.DepositRequest) (*domain.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if _, err := s.users.GetByID(ctx, req.UserID); err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Type:        domain.TransactionTypeDeposit,
		PhoneNumber: req.Phone,
		Provider:    s.gateway.Name(),
		Status:      domain.TransactionStatusPending,
	}
	if err := s.createInTx(ctx, txn); err != nil {
		return nil, err
	}

	pushResp, err := s.gateway.InitiateSTKPush(ctx, ports.STKPushRequest{
		Phone:         req.Phone,
		Amount:        req.Amount,
		TransactionID: txn.ID,
		Description:   "Wallet deposit",
	})
	if err != nil {
		if markErr := s.transactions.MarkFailed(ctx, txn.ID, err.Error()); markErr != nil {
			s.logger.Error().Err(markErr).Int64("transaction_id", txn.ID).
				Msg("failed to mark transaction failed after gateway error")
		}
		return nil, err
	}

	if err := s.transactions.SetCheckoutRequestID(ctx, txn.ID, pushResp.CheckoutRequestID); err != nil {
		return nil, err
	}
	txn.CheckoutRequestID = &pushResp.CheckoutRequestID

	s.logger.Info().
		Int64("transaction_id", txn.ID).
		Int64("user_id", req.UserID).
		Str("checkout_request_id", pushResp.CheckoutRequestID).
		Str("amount", req.Amount.String()).
		Msg("deposit initiated")

	return txn, nil
}

// CreateWithdrawal settles pessimistically: the balance is debited before
// the payout is attempted, so the user can never spend funds that are on
// their way out. An insufficient balance still leaves a failed audit row.
func (s *PaymentService) CreateWithdrawal(ctx context.Context, req ports.WithdrawalRequest) (*domain.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if _, err := s.users.GetByID(ctx, req.UserID); err != nil {
		return nil, err
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	defer tx.Rollback(ctx)

	debited, err := s.users.DebitBalance(ctx, tx, req.UserID, req.Amount)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if !debited {
		// Audit row outside the rolled-back transaction.
		desc := "Insufficient balance"
		failed := &domain.Transaction{
			UserID:      req.UserID,
			Amount:      req.Amount,
			Type:        domain.TransactionTypeWithdrawal,
			PhoneNumber: req.Phone,
			Provider:    s.gateway.Name(),
			Status:      domain.TransactionStatusFailed,
			ResultDesc:  &desc,
		}
		if auditErr := s.createInTx(ctx, failed); auditErr != nil {
			s.logger.Error().Err(auditErr).Int64("user_id", req.UserID).
				Msg("failed to record insufficient-funds withdrawal attempt")
		}
		return nil, apperror.ErrInsufficientFunds()
	}

	txn := &domain.Transaction{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Type:        domain.TransactionTypeWithdrawal,
		PhoneNumber: req.Phone,
		Provider:    s.gateway.Name(),
		Status:      domain.TransactionStatusProcessing,
	}
	if err := s.transactions.Create(ctx, tx, txn); err != nil {
		return nil, apperror.InternalError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(err)
	}

	s.logger.Info().
		Int64("transaction_id", txn.ID).
		Int64("user_id", req.UserID).
		Str("amount", req.Amount.String()).
		Msg("withdrawal created, balance debited")

	return txn, nil
}

// HandleCallback reconciles one provider callback delivery. A nil return
// means the delivery is settled from the provider's point of view and the
// success acknowledgment should be sent; that includes malformed payloads,
// unknown checkout ids and duplicates. Only a genuine internal fault
// returns an error, which asks the provider to redeliver.
func (s *PaymentService) HandleCallback(ctx context.Context, raw []byte) error {
	result := s.gateway.ParseCallback(raw)
	if result == nil {
		s.logger.Warn().Msg("discarding unparseable callback payload")
		return nil
	}

	log := s.logger.With().Str("checkout_request_id", result.CheckoutRequestID).Logger()

	// Fast path. A Redis error here is not fatal: the conditional
	// transition below is the authoritative guard.
	seen, err := s.dedupe.Seen(ctx, result.CheckoutRequestID)
	if err != nil {
		log.Warn().Err(err).Msg("callback dedupe check failed, falling through to database")
	} else if seen {
		log.Info().Msg("duplicate callback short-circuited")
		return nil
	}

	txn, err := s.transactions.GetByCheckoutRequestID(ctx, result.CheckoutRequestID)
	if err != nil {
		return fmt.Errorf("load transaction for callback: %w", err)
	}
	if txn == nil {
		log.Warn().Msg("callback for unknown checkout request id")
		return nil
	}
	if txn.IsTerminal() {
		log.Info().Str("status", string(txn.Status)).Msg("callback for already-settled transaction")
		s.markSeen(ctx, result.CheckoutRequestID)
		return nil
	}

	if err := s.settle(ctx, txn, result); err != nil {
		return err
	}
	s.markSeen(ctx, result.CheckoutRequestID)
	return nil
}

// settle applies the callback outcome and its balance effect in one
// database transaction. The credit only happens when this call wins the
// conditional transition, which is what makes it exactly-once.
func (s *PaymentService) settle(ctx context.Context, txn *domain.Transaction, result *ports.CallbackResult) error {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	status := domain.TransactionStatusFailed
	var receipt *string
	if result.Success {
		status = domain.TransactionStatusCompleted
		if result.ReceiptNumber != "" {
			receipt = &result.ReceiptNumber
		}
	}
	resultDesc := &result.ResultDesc

	applied, err := s.transactions.TransitionIfActive(ctx, tx, txn.ID, status, receipt, resultDesc)
	if err != nil {
		return fmt.Errorf("transition transaction %d: %w", txn.ID, err)
	}
	if !applied {
		// Lost the race against a concurrent delivery or the admin path.
		s.logger.Info().Int64("transaction_id", txn.ID).Msg("transaction already settled concurrently")
		return nil
	}

	if result.Success && txn.Type == domain.TransactionTypeDeposit {
		// Always the stored amount. The callback amount is informational
		// and never trusted for the ledger.
		if err := s.users.CreditBalance(ctx, tx, txn.UserID, txn.Amount); err != nil {
			return fmt.Errorf("credit deposit %d: %w", txn.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit settlement: %w", err)
	}

	s.logger.Info().
		Int64("transaction_id", txn.ID).
		Str("status", string(status)).
		Str("result_code", result.ResultCode).
		Msg("transaction settled")

	if !result.Amount.IsZero() && !result.Amount.Equal(txn.Amount) {
		s.logger.Warn().
			Int64("transaction_id", txn.ID).
			Str("stored_amount", txn.Amount.String()).
			Str("callback_amount", result.Amount.String()).
			Msg("callback amount differs from stored amount")
	}

	return nil
}

// UpdateStatus is the administrative override. It shares the conditional
// transition with the callback path, so completing a deposit by hand
// credits the balance at most once, and touching a terminal transaction is
// a no-op that returns the current row.
func (s *PaymentService) UpdateStatus(ctx context.Context, txID int64, status domain.TransactionStatus) (*domain.Transaction, error) {
	if !status.Valid() {
		return nil, apperror.ErrInvalidStatus(string(status))
	}

	txn, err := s.transactions.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if txn.IsTerminal() {
		return txn, nil
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	defer tx.Rollback(ctx)

	desc := "Status updated by administrator"
	applied, err := s.transactions.TransitionIfActive(ctx, tx, txID, status, nil, &desc)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if applied && status == domain.TransactionStatusCompleted && txn.Type == domain.TransactionTypeDeposit {
		if err := s.users.CreditBalance(ctx, tx, txn.UserID, txn.Amount); err != nil {
			return nil, apperror.InternalError(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(err)
	}

	s.logger.Info().
		Int64("transaction_id", txID).
		Str("status", string(status)).
		Bool("applied", applied).
		Msg("administrative status update")

	return s.transactions.GetByID(ctx, txID)
}

func (s *PaymentService) GetTransaction(ctx context.Context, userID, txID int64) (*domain.Transaction, error) {
	txn, err := s.transactions.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	// Not-found rather than forbidden: do not leak that the id exists.
	if txn.UserID != userID {
		return nil, apperror.ErrTransactionNotFound()
	}
	return txn, nil
}

func (s *PaymentService) ListTransactions(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}
	return s.transactions.List(ctx, params)
}

func (s *PaymentService) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}

// createInTx inserts a transaction in its own short-lived database
// transaction.
func (s *PaymentService) createInTx(ctx context.Context, txn *domain.Transaction) error {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(err)
	}
	defer tx.Rollback(ctx)

	if err := s.transactions.Create(ctx, tx, txn); err != nil {
		return apperror.InternalError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.InternalError(err)
	}
	return nil
}

func (s *PaymentService) markSeen(ctx context.Context, checkoutRequestID string) {
	if err := s.dedupe.Mark(ctx, checkoutRequestID, dedupeTTL); err != nil {
		s.logger.Warn().Err(err).Str("checkout_request_id", checkoutRequestID).
			Msg("failed to mark callback as seen")
	}
}
