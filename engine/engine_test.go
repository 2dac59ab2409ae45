package engine

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karollnt/goldstory-backend/chain"
	"github.com/karollnt/goldstory-backend/db"
	"github.com/karollnt/goldstory-backend/router"
	"github.com/karollnt/goldstory-backend/store"
)

var (
	testBroker   = ethcommon.HexToAddress("0x1111111111111111111111111111111111111111")
	testPayer    = ethcommon.HexToAddress("0x2222222222222222222222222222222222222222")
	testOperator = ethcommon.HexToAddress("0x3333333333333333333333333333333333333333")
	testUSDC     = ethcommon.HexToAddress("0x4444444444444444444444444444444444444444")
	testOutput   = ethcommon.HexToAddress("0x5555555555555555555555555555555555555555")
)

// fakeOracle returns a fixed settlement balance.
type fakeOracle struct {
	mu      sync.Mutex
	balance *big.Int
	err     error
	calls   int
}

func (f *fakeOracle) SettlementBalance(ctx context.Context, account ethcommon.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.balance), nil
}

// fakeTransfers resolves every transfer with a fixed outcome. When failAmount
// is set, only transfers of exactly that amount get the failure outcome.
type fakeTransfers struct {
	mu         sync.Mutex
	outcome    chain.Outcome
	err        error
	failAmount *big.Int
	calls      int
}

func (f *fakeTransfers) Transfer(ctx context.Context, target ethcommon.Address, amount *big.Int, onSubmit chain.SubmitListener) (*chain.TransferAttempt, error) {
	f.mu.Lock()
	f.calls++
	seq := f.calls
	outcome, err := f.outcome, f.err
	if f.failAmount != nil && amount.Cmp(f.failAmount) != 0 {
		outcome, err = chain.OutcomeConfirmed, nil
	}
	f.mu.Unlock()

	attempt := &chain.TransferAttempt{Target: target, Amount: new(big.Int).Set(amount), Outcome: chain.OutcomePending}
	if outcome != chain.OutcomeSubmissionFailed {
		attempt.TxHash = ethcommon.BytesToHash([]byte(fmt.Sprintf("transfer-%d", seq)))
		if onSubmit != nil {
			onSubmit(attempt)
		}
	}
	attempt.Outcome = outcome
	return attempt, err
}

// fakeSwaps mirrors fakeTransfers for the swap leg.
type fakeSwaps struct {
	mu      sync.Mutex
	outcome chain.Outcome
	err     error
	calls   int
}

func (f *fakeSwaps) Execute(ctx context.Context, route *router.Route, onSubmit chain.SubmitListener) (*chain.TransferAttempt, error) {
	f.mu.Lock()
	f.calls++
	seq := f.calls
	outcome, err := f.outcome, f.err
	f.mu.Unlock()

	attempt := &chain.TransferAttempt{Target: route.To, Outcome: chain.OutcomePending}
	if outcome != chain.OutcomeSubmissionFailed {
		attempt.TxHash = ethcommon.BytesToHash([]byte(fmt.Sprintf("swap-%d", seq)))
		if onSubmit != nil {
			onSubmit(attempt)
		}
	}
	attempt.Outcome = outcome
	return attempt, err
}

type fakeRoutes struct {
	mu    sync.Mutex
	err   error
	calls int
	last  router.RouteRequest
}

func (f *fakeRoutes) Resolve(ctx context.Context, req router.RouteRequest) (*router.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &router.Route{
		To:           ethcommon.HexToAddress("0x6666666666666666666666666666666666666666"),
		Calldata:     []byte{0x01, 0x02},
		Value:        big.NewInt(0),
		EstimatedGas: 250_000,
		Deadline:     time.Now().Add(30 * time.Minute),
	}, nil
}

// recordingNotifier captures every message in order.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(ctx context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recordingNotifier) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

type engineFixture struct {
	oracle    *fakeOracle
	transfers *fakeTransfers
	swaps     *fakeSwaps
	routes    *fakeRoutes
	notifier  *recordingNotifier
	engine    *Engine
}

func newFixture(t *testing.T, database *db.DB) *engineFixture {
	t.Helper()

	f := &engineFixture{
		oracle:    &fakeOracle{balance: big.NewInt(10_000_000_000)}, // 10000 USDC
		transfers: &fakeTransfers{outcome: chain.OutcomeConfirmed},
		swaps:     &fakeSwaps{outcome: chain.OutcomeConfirmed},
		routes:    &fakeRoutes{},
		notifier:  &recordingNotifier{},
	}

	eng, err := New(Params{
		Oracle:          f.oracle,
		Transfers:       f.transfers,
		Swaps:           f.swaps,
		Routes:          f.routes,
		Notifier:        f.notifier,
		Database:        database,
		Policy:          testPolicy(),
		Operator:        testOperator,
		Broker:          testBroker,
		SettlementAsset: testUSDC,
		OutputAsset:     testOutput,
	}, zerolog.Nop())
	require.NoError(t, err)

	f.engine = eng
	return f
}

func testPayment(amountRaw int64) IncomingPayment {
	return IncomingPayment{
		Payer:       testPayer,
		AmountRaw:   big.NewInt(amountRaw),
		BlockNumber: 42,
		ObservedAt:  time.Now().UTC(),
	}
}

func TestProcessHappyPath(t *testing.T) {
	f := newFixture(t, nil)

	cs := f.engine.Process(context.Background(), testPayment(1_000_000_000))

	assert.Equal(t, StateRetained, cs.State)
	assert.True(t, cs.State.Success())
	assert.Equal(t, 1, f.transfers.calls)
	assert.Equal(t, 1, f.routes.calls)
	assert.Equal(t, 1, f.swaps.calls)

	// Route request sells the swap share of the settlement asset for the
	// output asset, delivered straight to the payer.
	assert.Equal(t, testUSDC, f.routes.last.SellToken)
	assert.Equal(t, testOutput, f.routes.last.BuyToken)
	assert.Equal(t, testPayer, f.routes.last.Recipient)
	assert.Equal(t, big.NewInt(600_000_000), f.routes.last.SellAmount)

	// One notification per transition, ending in the accounting message.
	msgs := f.notifier.all()
	require.Len(t, msgs, 7)
	wantPrefixes := []string{"📥", "📤 Broker", "✅ Broker", "🔀", "📤 Swap", "✅ Swap", "🏦"}
	for i, prefix := range wantPrefixes {
		assert.True(t, strings.HasPrefix(msgs[i], prefix),
			"message %d = %q, want prefix %q", i, msgs[i], prefix)
	}
	assert.Contains(t, msgs[0], "1000")
	assert.Contains(t, msgs[6], "250")
}

func TestProcessInsufficientBalanceSkipsSubmission(t *testing.T) {
	f := newFixture(t, nil)
	f.oracle.balance = big.NewInt(100_000_000) // 100 USDC, below the 150 broker share

	cs := f.engine.Process(context.Background(), testPayment(1_000_000_000))

	assert.Equal(t, StateBrokerTransferFailed, cs.State)
	assert.Equal(t, 0, f.transfers.calls, "transfer must not be submitted when the balance guard fails")
	assert.Equal(t, 0, f.routes.calls)
	assert.Equal(t, 0, f.swaps.calls)
}

func TestProcessBalanceQueryFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.oracle.err = fmt.Errorf("rpc unavailable")

	cs := f.engine.Process(context.Background(), testPayment(1_000_000_000))

	assert.Equal(t, StateBrokerTransferFailed, cs.State)
	assert.Equal(t, 0, f.transfers.calls)
}

func TestProcessBrokerRevertStopsCase(t *testing.T) {
	f := newFixture(t, nil)
	f.transfers.outcome = chain.OutcomeReverted
	f.transfers.err = fmt.Errorf("execution reverted")

	cs := f.engine.Process(context.Background(), testPayment(1_000_000_000))

	assert.Equal(t, StateBrokerTransferFailed, cs.State)
	assert.Equal(t, 0, f.routes.calls, "route must not be resolved after a broker failure")
	assert.Equal(t, 0, f.swaps.calls)
}

func TestProcessBrokerTimeoutNeverResubmits(t *testing.T) {
	f := newFixture(t, nil)
	f.transfers.outcome = chain.OutcomeTimedOut
	f.transfers.err = fmt.Errorf("confirmation timed out")

	cs := f.engine.Process(context.Background(), testPayment(1_000_000_000))

	assert.Equal(t, StateBrokerTransferFailed, cs.State)
	assert.Equal(t, 1, f.transfers.calls, "a timed-out transfer must not be submitted again")
	assert.Equal(t, 0, f.swaps.calls)
}

func TestProcessNoRouteAbandonsSwap(t *testing.T) {
	f := newFixture(t, nil)
	f.routes.err = router.ErrNoRoute

	cs := f.engine.Process(context.Background(), testPayment(1_000_000_000))

	assert.Equal(t, StateNoRoute, cs.State)
	assert.Equal(t, 1, f.transfers.calls, "broker leg still runs before route resolution")
	assert.Equal(t, 0, f.swaps.calls, "no swap may be submitted without a route")
}

func TestProcessSwapRevert(t *testing.T) {
	f := newFixture(t, nil)
	f.swaps.outcome = chain.OutcomeReverted
	f.swaps.err = fmt.Errorf("execution reverted")

	cs := f.engine.Process(context.Background(), testPayment(1_000_000_000))

	assert.Equal(t, StateSwapFailed, cs.State)
	assert.Equal(t, 1, f.swaps.calls)
}

func TestProcessSwapTimeoutNeverResubmits(t *testing.T) {
	f := newFixture(t, nil)
	f.swaps.outcome = chain.OutcomeTimedOut
	f.swaps.err = fmt.Errorf("confirmation timed out")

	cs := f.engine.Process(context.Background(), testPayment(1_000_000_000))

	assert.Equal(t, StateSwapFailed, cs.State)
	assert.Equal(t, 1, f.swaps.calls, "a timed-out swap must not be submitted again")
}

func TestProcessWritesCaseLog(t *testing.T) {
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	defer database.Close()

	f := newFixture(t, database)
	cs := f.engine.Process(context.Background(), testPayment(1_000_000_000))
	require.Equal(t, StateRetained, cs.State)

	var events []store.CaseEvent
	require.NoError(t, database.Client().Where("case_id = ?", cs.ID).Order("id").Find(&events).Error)
	require.Len(t, events, 7)
	assert.Equal(t, string(StateReceived), events[0].State)
	assert.Equal(t, string(StateRetained), events[6].State)
	assert.Equal(t, testPayer.Hex(), events[0].Payer)
	assert.Equal(t, uint64(42), events[0].BlockNumber)

	var pending []store.PendingTransaction
	require.NoError(t, database.Client().Where("case_id = ?", cs.ID).Find(&pending).Error)
	require.Len(t, pending, 2)
	for _, p := range pending {
		assert.Equal(t, store.TxStatusConfirmed, p.Status)
	}
}

func TestProcessTimedOutTransactionStaysOpen(t *testing.T) {
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	defer database.Close()

	f := newFixture(t, database)
	f.transfers.outcome = chain.OutcomeTimedOut
	f.transfers.err = fmt.Errorf("confirmation timed out")

	cs := f.engine.Process(context.Background(), testPayment(1_000_000_000))
	require.Equal(t, StateBrokerTransferFailed, cs.State)

	var pending []store.PendingTransaction
	require.NoError(t, database.Client().Where("case_id = ?", cs.ID).Find(&pending).Error)
	require.Len(t, pending, 1)
	assert.Equal(t, store.TxStatusTimedOut, pending[0].Status)
	assert.Equal(t, "broker_transfer", pending[0].Leg)
}

func TestConcurrentCasesAreIsolated(t *testing.T) {
	f := newFixture(t, nil)

	// Only the 1000-USDC payment's broker share reverts; the 500-USDC
	// payment must still complete.
	f.transfers.outcome = chain.OutcomeReverted
	f.transfers.err = fmt.Errorf("execution reverted")
	f.transfers.failAmount = big.NewInt(150_000_000)

	var wg sync.WaitGroup
	results := make([]*PaymentCase, 2)
	amounts := []int64{1_000_000_000, 500_000_000}
	for i, amount := range amounts {
		wg.Add(1)
		go func(i int, amount int64) {
			defer wg.Done()
			results[i] = f.engine.Process(context.Background(), testPayment(amount))
		}(i, amount)
	}
	wg.Wait()

	assert.Equal(t, StateBrokerTransferFailed, results[0].State)
	assert.Equal(t, StateRetained, results[1].State)
	assert.NotEqual(t, results[0].ID, results[1].ID)
}

func TestSubmitRecoversFromPanic(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.routes = panicRoutes{}
	f.engine.Submit(context.Background(), testPayment(1_000_000_000))
	f.engine.Wait()
}

type panicRoutes struct{}

func (panicRoutes) Resolve(ctx context.Context, req router.RouteRequest) (*router.Route, error) {
	panic("boom")
}
