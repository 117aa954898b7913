package integration

import (
	"context"
	"sync"
	"testing"

	"agropay/internal/core/domain"
	"agropay/internal/core/ports"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Concurrent redeliveries of the same success callback must credit the
// balance exactly once.
func TestConcurrentCallbackDeliveries(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.users.addUser(42, decimal.Zero)

	txn, err := e.svc.CreateDeposit(ctx, ports.DepositRequest{
		UserID: 42, Amount: decimal.NewFromInt(500), Phone: "0712345678",
	})
	require.NoError(t, err)

	raw := successCallbackFor(txn, "REC0001")

	const deliveries = 32
	var wg sync.WaitGroup
	wg.Add(deliveries)
	for i := 0; i < deliveries; i++ {
		go func() {
			defer wg.Done()
			_ = e.svc.HandleCallback(ctx, raw)
		}()
	}
	wg.Wait()

	balance, err := e.svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(500)),
		"expected exactly one credit, got balance %s", balance)

	settled, err := e.transactions.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, settled.Status)
}

// A callback and an admin override racing for the same transaction must
// settle it exactly once.
func TestCallbackRacesAdminOverride(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.users.addUser(42, decimal.Zero)

	txn, err := e.svc.CreateDeposit(ctx, ports.DepositRequest{
		UserID: 42, Amount: decimal.NewFromInt(500), Phone: "0712345678",
	})
	require.NoError(t, err)

	raw := successCallbackFor(txn, "REC0001")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = e.svc.HandleCallback(ctx, raw)
	}()
	go func() {
		defer wg.Done()
		_, _ = e.svc.UpdateStatus(ctx, txn.ID, domain.TransactionStatusCompleted)
	}()
	wg.Wait()

	balance, err := e.svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(500)))
}

// Concurrent withdrawals cannot jointly overdraw the balance.
func TestConcurrentWithdrawals(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.users.addUser(42, decimal.NewFromInt(100))

	const attempts = 10
	var wg sync.WaitGroup
	wg.Add(attempts)
	successes := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			if _, err := e.svc.CreateWithdrawal(ctx, ports.WithdrawalRequest{
				UserID: 42, Amount: decimal.NewFromInt(60), Phone: "0712345678",
			}); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	var succeeded int
	for range successes {
		succeeded++
	}
	assert.Equal(t, 1, succeeded, "only one 60 withdrawal fits in a 100 balance")

	balance, err := e.svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(40)))
}
