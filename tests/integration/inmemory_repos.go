package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"agropay/internal/core/domain"
	"agropay/internal/core/ports"
	"agropay/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.Mutex
	nextID       int64
	transactions map[int64]*domain.Transaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{nextID: 1, transactions: make(map[int64]*domain.Transaction)}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = r.nextID
	r.nextID++
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	clone := *t
	r.transactions[t.ID] = &clone
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, apperror.ErrTransactionNotFound()
	}
	clone := *t
	return &clone, nil
}

func (r *inMemoryTransactionRepo) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transactions {
		if t.CheckoutRequestID != nil && *t.CheckoutRequestID == checkoutRequestID {
			clone := *t
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Transaction
	for _, t := range r.transactions {
		if t.UserID != params.UserID {
			continue
		}
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		if params.Type != nil && t.Type != *params.Type {
			continue
		}
		result = append(result, *t)
	}
	total := int64(len(result))

	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Transaction{}, total, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

func (r *inMemoryTransactionRepo) SetCheckoutRequestID(ctx context.Context, id int64, checkoutRequestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return apperror.ErrTransactionNotFound()
	}
	t.CheckoutRequestID = &checkoutRequestID
	t.UpdatedAt = time.Now()
	return nil
}

func (r *inMemoryTransactionRepo) MarkFailed(ctx context.Context, id int64, resultDesc string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return apperror.ErrTransactionNotFound()
	}
	if t.Status.IsTerminal() {
		return nil
	}
	t.Status = domain.TransactionStatusFailed
	t.ResultDesc = &resultDesc
	t.UpdatedAt = time.Now()
	return nil
}

// TransitionIfActive mirrors the conditional UPDATE: the check and the write
// happen under one lock, so concurrent settlements serialize here exactly
// like rows serialize in Postgres.
func (r *inMemoryTransactionRepo) TransitionIfActive(ctx context.Context, tx pgx.Tx, id int64, status domain.TransactionStatus, receipt, resultDesc *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok || t.Status.IsTerminal() {
		return false, nil
	}
	t.Status = status
	if receipt != nil {
		t.MpesaReceipt = receipt
	}
	if resultDesc != nil {
		t.ResultDesc = resultDesc
	}
	t.UpdatedAt = time.Now()
	return true, nil
}

// --- In-Memory User Repo ---

type inMemoryUserRepo struct {
	mu    sync.Mutex
	users map[int64]*domain.User
}

func newInMemoryUserRepo() *inMemoryUserRepo {
	return &inMemoryUserRepo{users: make(map[int64]*domain.User)}
}

func (r *inMemoryUserRepo) addUser(id int64, balance decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id] = &domain.User{ID: id, PhoneNumber: "254712345678", Balance: balance}
}

func (r *inMemoryUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperror.ErrUserNotFound()
	}
	clone := *u
	return &clone, nil
}

func (r *inMemoryUserRepo) CreditBalance(ctx context.Context, tx pgx.Tx, userID int64, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return apperror.ErrUserNotFound()
	}
	u.Balance = u.Balance.Add(amount)
	return nil
}

func (r *inMemoryUserRepo) DebitBalance(ctx context.Context, tx pgx.Tx, userID int64, amount decimal.Decimal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return false, apperror.ErrUserNotFound()
	}
	if u.Balance.LessThan(amount) {
		return false, nil
	}
	u.Balance = u.Balance.Sub(amount)
	return true, nil
}

// --- In-Memory Callback Dedupe ---

type inMemoryDedupe struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newInMemoryDedupe() *inMemoryDedupe {
	return &inMemoryDedupe{seen: make(map[string]bool)}
}

func (d *inMemoryDedupe) Seen(ctx context.Context, checkoutRequestID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[checkoutRequestID], nil
}

func (d *inMemoryDedupe) Mark(ctx context.Context, checkoutRequestID string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[checkoutRequestID] = true
	return nil
}

// --- Scripted Gateway ---

// scriptedGateway hands out sequential checkout request ids and parses the
// same callback envelope shape the real provider sends.
type scriptedGateway struct {
	mu       sync.Mutex
	nextID   int
	failPush bool
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{nextID: 1}
}

func (g *scriptedGateway) Name() string { return "mpesa" }

func (g *scriptedGateway) InitiateSTKPush(ctx context.Context, req ports.STKPushRequest) (*ports.STKPushResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failPush {
		return nil, apperror.ErrGatewayRequest("Service unavailable", fmt.Errorf("status 503"))
	}
	id := fmt.Sprintf("ws_CO_%06d", g.nextID)
	g.nextID++
	return &ports.STKPushResponse{CheckoutRequestID: id, ResponseCode: "0"}, nil
}

// ParseCallback accepts a JSON-encoded ports.CallbackResult. Tests build
// callbacks with encodeCallback; malformed blobs return nil like the real
// parser.
func (g *scriptedGateway) ParseCallback(raw []byte) *ports.CallbackResult {
	var result ports.CallbackResult
	if err := json.Unmarshal(raw, &result); err != nil || result.CheckoutRequestID == "" {
		return nil
	}
	return &result
}

func encodeCallback(result ports.CallbackResult) []byte {
	raw, err := json.Marshal(result)
	if err != nil {
		panic(err)
	}
	return raw
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
