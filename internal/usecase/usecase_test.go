package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"deposit-service/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	store     *memStore
	clock     *fakeClock
	source    *fakeSource
	notifier  *recordingNotifier
	orders    *OrderUsecase
	reconcile *ReconcileUsecase
	settler   *SettlementEngine
	t0        time.Time
}

func newTestEnv(t *testing.T, rnd RandomSource) *testEnv {
	t.Helper()

	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	env := &testEnv{
		store:    newMemStore(),
		clock:    &fakeClock{t: t0},
		source:   newFakeSource(),
		notifier: &recordingNotifier{},
		t0:       t0,
	}
	logger := zap.NewNop()

	env.orders = NewOrderUsecase(env.store, NewSuffixAllocator(4, rnd), OrderSettings{
		ReceiveAddress: testAddress,
		Network:        "TRON",
		Token:          "USDT",
		MinAmount:      decimal.RequireFromString("1.00"),
		Validity:       10 * time.Minute,
	}, logger)
	env.orders.now = env.clock.Now

	env.settler = NewSettlementEngine(env.store, env.notifier, logger)
	env.settler.now = env.clock.Now

	env.reconcile = NewReconcileUsecase(env.store, env.source, NewMatcher(5*time.Minute), env.settler, env.notifier,
		ReconcileSettings{FetchLimit: 50, SweepBatch: 50, Concurrency: 4}, logger)
	env.reconcile.now = env.clock.Now

	return env
}

func (e *testEnv) pay(order *domain.DepositOrder, txID string, at time.Time) {
	e.source.add(order.ReceiveAddress, domain.Transfer{
		To:        order.ReceiveAddress,
		From:      "TPayer",
		Amount:    order.ExpectedAmount,
		Timestamp: at,
		TxID:      txID,
		Provider:  "test",
	})
}

func TestCreateOrder(t *testing.T) {
	env := newTestEnv(t, &seqRand{vals: []int{4320}})

	order, err := env.orders.CreateOrder(context.Background(), "u1", decimal.RequireFromString("10.00"))
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, 4321, order.Discriminator)
	assert.Equal(t, "10.4321", order.ExpectedAmount.StringFixed(4))
	assert.Equal(t, env.t0.Add(10*time.Minute), order.ExpireAt)
	assert.Equal(t, testAddress, order.ReceiveAddress)
	assert.Contains(t, order.OrderID, "dep_")
}

func TestCreateOrderValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("0.99"))
	assert.ErrorIs(t, err, domain.ErrBelowMinimum)

	_, err = env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("-5"))
	assert.ErrorIs(t, err, domain.ErrBelowMinimum)

	_, err = env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("0.004"))
	assert.ErrorIs(t, err, domain.ErrBelowMinimum)

	// with no minimum configured a non-positive amount is still refused
	env.orders.settings.MinAmount = decimal.Zero
	_, err = env.orders.CreateOrder(ctx, "u1", decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	env.orders.settings.MinAmount = decimal.RequireFromString("1.00")

	_, err = env.orders.CreateOrder(ctx, " ", decimal.RequireFromString("5"))
	assert.ErrorIs(t, err, domain.ErrInvalidUserID)

	env.orders.settings.ReceiveAddress = ""
	_, err = env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("5"))
	assert.ErrorIs(t, err, domain.ErrAddressNotConfigured)
}

func TestCreateOrderTruncatesBase(t *testing.T) {
	env := newTestEnv(t, &seqRand{vals: []int{0}})

	order, err := env.orders.CreateOrder(context.Background(), "u1", decimal.RequireFromString("12.349"))
	require.NoError(t, err)
	assert.Equal(t, "12.34", order.BaseAmount.StringFixed(2))
	assert.Equal(t, "12.3401", order.ExpectedAmount.StringFixed(4))
}

func TestCreateOrderDistinctDiscriminators(t *testing.T) {
	// the source repeats 4320 forever after the first draws, so the second
	// order must skip the taken value
	env := newTestEnv(t, &seqRand{vals: []int{4320, 4320, 17}})
	ctx := context.Background()
	base := decimal.RequireFromString("10.00")

	a, err := env.orders.CreateOrder(ctx, "u1", base)
	require.NoError(t, err)
	b, err := env.orders.CreateOrder(ctx, "u2", base)
	require.NoError(t, err)

	assert.NotEqual(t, a.Discriminator, b.Discriminator)
	assert.False(t, a.ExpectedAmount.Equal(b.ExpectedAmount))
	assert.Equal(t, 18, b.Discriminator)
}

func TestCreateOrderExhaustion(t *testing.T) {
	env := newTestEnv(t, &seqRand{vals: []int{1}})
	env.store.forceExists = maxAllocationAttempts

	_, err := env.orders.CreateOrder(context.Background(), "u1", decimal.RequireFromString("10.00"))
	assert.ErrorIs(t, err, domain.ErrAllocationExhausted)
}

func TestCreateOrderRetriesInsertRace(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.raceOnCreate = 2

	order, err := env.orders.CreateOrder(context.Background(), "u1", decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
}

func TestListOrders(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	env.clock.Set(env.t0.Add(time.Minute))
	second, err := env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("20.00"))
	require.NoError(t, err)

	_, err = env.orders.CancelOrder(ctx, first.OrderID, "u1")
	require.NoError(t, err)

	got, err := env.orders.ListOrders(ctx, domain.ListFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, second.OrderID, got[0].OrderID)

	got, err = env.orders.ListOrders(ctx, domain.ListFilter{UserID: "u1", IncludeCanceled: true})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.OrderID, got[0].OrderID, "newest first")
}

// Scenario: settle at t0+2min credits the base amount
func TestVerifySettlesAndCreditsBase(t *testing.T) {
	env := newTestEnv(t, &seqRand{vals: []int{11}})
	ctx := context.Background()

	order, err := env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("50.00"))
	require.NoError(t, err)
	assert.Equal(t, "50.0012", order.ExpectedAmount.StringFixed(4))

	env.pay(order, "tx-50", env.t0.Add(2*time.Minute))
	env.clock.Set(env.t0.Add(2*time.Minute + 10*time.Second))

	res, err := env.reconcile.VerifyOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerifySettled, res.Outcome)
	assert.Equal(t, "tx-50", res.TxID)

	stored, err := env.store.GetByID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, stored.Status)
	require.NotNil(t, stored.TxID)
	assert.Equal(t, "tx-50", *stored.TxID)
	assert.Equal(t, "TPayer", *stored.FromAddress)
	assert.True(t, env.store.balance("u1").Equal(decimal.RequireFromString("50.00")))

	assert.Equal(t, []domain.EventType{domain.EventDepositCredited}, env.notifier.userTypes())
	assert.Len(t, env.notifier.ops, 1)

	// verifying again is a no-op
	res, err = env.reconcile.VerifyOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyAlreadySettled, res.Outcome)
	assert.Equal(t, "tx-50", res.TxID)
	assert.Equal(t, 1, env.store.credits)
}

// Scenario: a transfer arriving after expiry is never credited
func TestLateTransferAfterExpiry(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	order, err := env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("10.00"))
	require.NoError(t, err)

	env.pay(order, "late", env.t0.Add(11*time.Minute))
	env.clock.Set(env.t0.Add(11 * time.Minute))

	res, err := env.reconcile.VerifyOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyAlreadyExpired, res.Outcome)
	assert.True(t, env.store.balance("u1").IsZero())
	assert.Equal(t, []domain.EventType{domain.EventDepositExpired}, env.notifier.userTypes())

	settled, err := env.reconcile.ReconcilePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, settled)
}

func TestVerifyNoMatch(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	order, err := env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("10.00"))
	require.NoError(t, err)

	// payer sent the base amount without the discriminator
	env.source.add(testAddress, domain.Transfer{To: testAddress, Amount: decimal.RequireFromString("10.00"), Timestamp: env.t0.Add(time.Minute), TxID: "short"})
	env.clock.Set(env.t0.Add(2 * time.Minute))

	res, err := env.reconcile.VerifyOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyNoMatch, res.Outcome)
}

func TestVerifyUnknownOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.reconcile.VerifyOrder(context.Background(), "dep_missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

// Scenario: the scheduler and an on-demand verify race for the same order
func TestConcurrentSettleCreditsOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	order, err := env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	env.pay(order, "tx-race", env.t0.Add(time.Minute))
	env.clock.Set(env.t0.Add(2 * time.Minute))

	tr := env.source.FetchRecentTransfers(ctx, testAddress, 10)[0]

	var wg sync.WaitGroup
	outcomes := make([]domain.SettleOutcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			trigger := domain.TriggerScheduler
			if i%2 == 0 {
				trigger = domain.TriggerVerify
			}
			out, err := env.settler.Settle(ctx, order, tr, trigger)
			assert.NoError(t, err)
			outcomes[i] = out
		}()
	}
	wg.Wait()

	settled := 0
	for _, o := range outcomes {
		if o == domain.SettleSettled {
			settled++
		} else {
			assert.Equal(t, domain.SettleAlreadySettled, o)
		}
	}
	assert.Equal(t, 1, settled)
	assert.Equal(t, 1, env.store.credits)
	assert.True(t, env.store.balance("u1").Equal(decimal.RequireFromString("10.00")))
}

func TestSequentialSettleIsNoop(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	order, err := env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	tr := domain.Transfer{To: testAddress, Amount: order.ExpectedAmount, Timestamp: env.t0, TxID: "tx"}

	first, err := env.settler.Settle(ctx, order, tr, domain.TriggerVerify)
	require.NoError(t, err)
	second, err := env.settler.Settle(ctx, order, tr, domain.TriggerScheduler)
	require.NoError(t, err)

	assert.Equal(t, domain.SettleSettled, first)
	assert.Equal(t, domain.SettleAlreadySettled, second)
	assert.Equal(t, 1, env.store.credits)
}

func TestSettleNotificationFailureDoesNotUnwind(t *testing.T) {
	env := newTestEnv(t, nil)
	env.notifier.err = assert.AnError
	ctx := context.Background()

	order, err := env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	tr := domain.Transfer{To: testAddress, Amount: order.ExpectedAmount, Timestamp: env.t0, TxID: "tx"}

	out, err := env.settler.Settle(ctx, order, tr, domain.TriggerVerify)
	require.NoError(t, err)
	assert.Equal(t, domain.SettleSettled, out)
	assert.True(t, env.store.balance("u1").Equal(decimal.RequireFromString("10.00")))
}

// Scenario: cancel before payment, then verify
func TestCancelThenVerify(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	order, err := env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("10.00"))
	require.NoError(t, err)

	out, err := env.orders.CancelOrder(ctx, order.OrderID, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.CancelCanceled, out)

	env.pay(order, "after-cancel", env.t0.Add(time.Minute))
	env.clock.Set(env.t0.Add(2 * time.Minute))

	res, err := env.reconcile.VerifyOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyNotPending, res.Outcome)
	assert.True(t, env.store.balance("u1").IsZero())
}

func TestCancelPaidOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	order, err := env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	env.pay(order, "tx", env.t0.Add(time.Minute))
	env.clock.Set(env.t0.Add(time.Minute))

	res, err := env.reconcile.VerifyOrder(ctx, order.OrderID)
	require.NoError(t, err)
	require.Equal(t, domain.VerifySettled, res.Outcome)

	out, err := env.orders.CancelOrder(ctx, order.OrderID, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.CancelNotPending, out)

	stored, _ := env.store.GetByID(ctx, order.OrderID)
	assert.Equal(t, domain.OrderStatusPaid, stored.Status)
}

func TestCancelAfterWindowExpiresOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	order, err := env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("10.00"))
	require.NoError(t, err)

	// past expire_at, reaper has not run yet
	env.clock.Set(env.t0.Add(11 * time.Minute))

	out, err := env.orders.CancelOrder(ctx, order.OrderID, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.CancelNotPending, out)

	stored, err := env.store.GetByID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusExpired, stored.Status)

	res, err := env.reconcile.VerifyOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerifyAlreadyExpired, res.Outcome)
}

func TestCancelForeignOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	order, err := env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("10.00"))
	require.NoError(t, err)

	_, err = env.orders.CancelOrder(ctx, order.OrderID, "intruder")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestReconcilePendingFetchesOncePerAddress(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	var orders []*domain.DepositOrder
	for i := 0; i < 6; i++ {
		o, err := env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("10.00"))
		require.NoError(t, err)
		orders = append(orders, o)
	}
	env.pay(orders[1], "tx-1", env.t0.Add(time.Minute))
	env.pay(orders[4], "tx-4", env.t0.Add(time.Minute))
	env.clock.Set(env.t0.Add(2 * time.Minute))

	settled, err := env.reconcile.ReconcilePending(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, settled)
	assert.Equal(t, 1, env.source.calls[testAddress])
	assert.True(t, env.store.balance("u1").Equal(decimal.RequireFromString("20.00")))
}

func TestTransferAlreadyUsedFallsBackToNextCandidate(t *testing.T) {
	env := newTestEnv(t, &seqRand{vals: []int{99}})
	ctx := context.Background()

	// an old order with the same amount was paid by "reused"
	old, err := env.orders.CreateOrder(ctx, "u0", decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	env.pay(old, "reused", env.t0.Add(time.Minute))
	env.clock.Set(env.t0.Add(time.Minute))
	res, err := env.reconcile.VerifyOrder(ctx, old.OrderID)
	require.NoError(t, err)
	require.Equal(t, domain.VerifySettled, res.Outcome)

	order, err := env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	require.True(t, order.ExpectedAmount.Equal(old.ExpectedAmount))

	env.pay(order, "fresh", env.t0.Add(90*time.Second))
	// the reused transfer is newer so the matcher sees it first
	env.source.add(testAddress, domain.Transfer{To: testAddress, Amount: order.ExpectedAmount, Timestamp: env.t0.Add(2 * time.Minute), TxID: "reused"})
	env.clock.Set(env.t0.Add(3 * time.Minute))

	res, err = env.reconcile.VerifyOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerifySettled, res.Outcome)
	assert.Equal(t, "fresh", res.TxID)
}

func TestExpireDue(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	a, err := env.orders.CreateOrder(ctx, "u1", decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	env.clock.Set(env.t0.Add(5 * time.Minute))
	b, err := env.orders.CreateOrder(ctx, "u2", decimal.RequireFromString("10.00"))
	require.NoError(t, err)

	env.clock.Set(env.t0.Add(10 * time.Minute))
	n, err := env.reconcile.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	gotA, _ := env.store.GetByID(ctx, a.OrderID)
	gotB, _ := env.store.GetByID(ctx, b.OrderID)
	assert.Equal(t, domain.OrderStatusExpired, gotA.Status)
	assert.Equal(t, domain.OrderStatusPending, gotB.Status)

	// terminal states are never re-mutated
	out, err := env.orders.CancelOrder(ctx, a.OrderID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.CancelNotPending, out)
}
