// Package engine implements the payment distribution engine: the state
// machine that turns one detected incoming transfer into a broker transfer, a
// swap for the paying client, and a retained residual, with confirmation,
// timeout and failure-recovery semantics.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/karollnt/goldstory-backend/chain"
	"github.com/karollnt/goldstory-backend/config"
	"github.com/karollnt/goldstory-backend/db"
	"github.com/karollnt/goldstory-backend/errors"
	"github.com/karollnt/goldstory-backend/metrics"
	"github.com/karollnt/goldstory-backend/notify"
	"github.com/karollnt/goldstory-backend/router"
)

// Engine orchestrates payment cases. Each case runs on its own goroutine from
// start to terminal state; steps within a case are strictly sequential because
// the swap leg's pre-checks depend on post-transfer balances. Cases share
// nothing mutable beyond the submitter's serialization lock and the read-only
// oracle.
type Engine struct {
	oracle    Oracle
	transfers TransferExecutor
	swaps     SwapExecutor
	routes    RouteResolver
	notifier  notify.Notifier
	log       *caseLog
	policy    config.Policy

	operator        ethcommon.Address
	broker          ethcommon.Address
	settlementAsset ethcommon.Address
	outputAsset     ethcommon.Address

	logger zerolog.Logger
	wg     sync.WaitGroup
}

// Params collects the engine's injected collaborators.
type Params struct {
	Oracle          Oracle
	Transfers       TransferExecutor
	Swaps           SwapExecutor
	Routes          RouteResolver
	Notifier        notify.Notifier
	Database        *db.DB
	Policy          config.Policy
	Operator        ethcommon.Address
	Broker          ethcommon.Address
	SettlementAsset ethcommon.Address
	OutputAsset     ethcommon.Address
}

// New creates a payment distribution engine.
func New(p Params, logger zerolog.Logger) (*Engine, error) {
	if p.Oracle == nil || p.Transfers == nil || p.Swaps == nil || p.Routes == nil {
		return nil, fmt.Errorf("oracle, transfer executor, swap executor and route resolver are required")
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	log := logger.With().Str("component", "distribution_engine").Logger()

	return &Engine{
		oracle:          p.Oracle,
		transfers:       p.Transfers,
		swaps:           p.Swaps,
		routes:          p.Routes,
		notifier:        notifier,
		log:             newCaseLog(p.Database, log),
		policy:          p.Policy,
		operator:        p.Operator,
		broker:          p.Broker,
		settlementAsset: p.SettlementAsset,
		outputAsset:     p.OutputAsset,
		logger:          log,
	}, nil
}

// Submit starts processing a payment on its own goroutine. A panic inside one
// case is recovered and recorded; it never takes down concurrently processing
// payments or the ingestion pipeline.
func (e *Engine) Submit(ctx context.Context, payment IncomingPayment) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().
					Interface("panic", r).
					Str("payer", payment.Payer.Hex()).
					Msg("panic recovered while processing payment case")
			}
		}()
		e.Process(ctx, payment)
	}()
}

// Wait blocks until every submitted case has reached a terminal state.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Process runs one payment case to a terminal state and returns it.
func (e *Engine) Process(ctx context.Context, payment IncomingPayment) *PaymentCase {
	cs := &PaymentCase{
		ID:      uuid.NewString(),
		Payment: payment,
		Plan:    NewDistributionPlan(payment.AmountRaw, e.policy),
		State:   StateReceived,
	}

	metrics.CasesStarted.Inc()
	e.record(ctx, cs, StateReceived, "", cs.Plan.AmountUSDC.String(), "",
		fmt.Sprintf("📥 Processing payment of $%s USDC from %s\nSplit: broker $%s / swap $%s / retained $%s",
			cs.Plan.AmountUSDC, payment.Payer.Hex(), cs.Plan.BrokerShare, cs.Plan.SwapShare, cs.Plan.RetainedShare))

	if e.runBrokerLeg(ctx, cs) && e.runSwapLeg(ctx, cs) {
		e.record(ctx, cs, StateRetained, "", cs.Plan.RetainedShare.String(), "",
			fmt.Sprintf("🏦 Retained $%s USDC in the operating account", cs.Plan.RetainedShare))
	}

	return cs
}

// runBrokerLeg forwards the broker share. Returns true when the case may
// proceed to the swap leg.
func (e *Engine) runBrokerLeg(ctx context.Context, cs *PaymentCase) bool {
	brokerRaw := cs.Plan.BrokerShareRaw()

	// Guard before submitting anything: the transfer is doomed if the
	// settlement balance already cannot cover the broker share.
	balance, err := e.settlementBalance(ctx)
	if err != nil {
		e.record(ctx, cs, StateBrokerTransferFailed, "", cs.Plan.BrokerShare.String(), err.Error(),
			fmt.Sprintf("❌ Broker transfer aborted: balance query failed (%v)", err))
		return false
	}
	if balance.Cmp(brokerRaw) < 0 {
		detail := fmt.Sprintf("settlement balance %s below broker share %s", balance, brokerRaw)
		e.record(ctx, cs, StateBrokerTransferFailed, "", cs.Plan.BrokerShare.String(), detail,
			fmt.Sprintf("❌ Broker transfer aborted: insufficient settlement balance (have %s raw, need %s raw)", balance, brokerRaw))
		return false
	}

	attempt, terr := e.transfers.Transfer(ctx, e.broker, brokerRaw, func(a *chain.TransferAttempt) {
		e.log.trackSubmission(cs, a, "broker_transfer")
		e.record(ctx, cs, StateBrokerTransferSubmitted, a.TxHash.Hex(), cs.Plan.BrokerShare.String(), "",
			fmt.Sprintf("📤 Broker transfer submitted: $%s USDC → %s (tx %s)", cs.Plan.BrokerShare, e.broker.Hex(), a.TxHash.Hex()))
	})
	cs.Attempts = append(cs.Attempts, attempt)
	e.log.resolveSubmission(attempt)

	if attempt.Outcome != chain.OutcomeConfirmed {
		// Timeout is treated as failure for this leg specifically: downstream
		// steps must not proceed while broker funding is unconfirmed. The
		// funds may still have moved; the reconciler revisits the hash.
		e.record(ctx, cs, StateBrokerTransferFailed, attemptHash(attempt), cs.Plan.BrokerShare.String(), errDetail(terr),
			brokerFailureMessage(attempt, terr))
		return false
	}

	e.record(ctx, cs, StateBrokerTransferConfirmed, attempt.TxHash.Hex(), cs.Plan.BrokerShare.String(), "",
		fmt.Sprintf("✅ Broker share sent: $%s USDC → %s (tx %s)", cs.Plan.BrokerShare, e.broker.Hex(), attempt.TxHash.Hex()))
	return true
}

// runSwapLeg resolves a route for the swap share and executes it. Returns true
// when the case may settle as retained.
func (e *Engine) runSwapLeg(ctx context.Context, cs *PaymentCase) bool {
	route, err := e.routes.Resolve(ctx, router.RouteRequest{
		SellToken:  e.settlementAsset,
		BuyToken:   e.outputAsset,
		SellAmount: cs.Plan.SwapShareRaw(),
		Recipient:  cs.Payment.Payer,
	})
	if err != nil {
		if errors.Is(err, router.ErrNoRoute) {
			// Expected business outcome, not a system fault.
			e.record(ctx, cs, StateNoRoute, "", cs.Plan.SwapShare.String(), "",
				fmt.Sprintf("❌ No viable swap route for $%s USDC; swap leg abandoned", cs.Plan.SwapShare))
			return false
		}
		e.record(ctx, cs, StateSwapFailed, "", cs.Plan.SwapShare.String(), err.Error(),
			fmt.Sprintf("❌ Route resolution failed for $%s USDC: %v", cs.Plan.SwapShare, err))
		return false
	}
	cs.Route = route

	e.record(ctx, cs, StateSwapRouteResolved, "", cs.Plan.SwapShare.String(), "",
		fmt.Sprintf("🔀 Swap route resolved for $%s USDC (target %s, deadline %s)",
			cs.Plan.SwapShare, route.To.Hex(), route.Deadline.UTC().Format("15:04:05")))

	attempt, serr := e.swaps.Execute(ctx, route, func(a *chain.TransferAttempt) {
		e.log.trackSubmission(cs, a, "swap")
		e.record(ctx, cs, StateSwapSubmitted, a.TxHash.Hex(), cs.Plan.SwapShare.String(), "",
			fmt.Sprintf("📤 Swap submitted for $%s USDC (tx %s)", cs.Plan.SwapShare, a.TxHash.Hex()))
	})
	cs.Attempts = append(cs.Attempts, attempt)
	e.log.resolveSubmission(attempt)

	if attempt.Outcome != chain.OutcomeConfirmed {
		e.record(ctx, cs, StateSwapFailed, attemptHash(attempt), cs.Plan.SwapShare.String(), errDetail(serr),
			swapFailureMessage(attempt, serr))
		return false
	}

	e.record(ctx, cs, StateSwapConfirmed, attempt.TxHash.Hex(), cs.Plan.SwapShare.String(), "",
		fmt.Sprintf("✅ Swap completed: $%s USDC converted for %s (tx %s)", cs.Plan.SwapShare, cs.Payment.Payer.Hex(), attempt.TxHash.Hex()))
	return true
}

// record performs one state transition: append to the durable case log first,
// then emit exactly one notification, then count terminal outcomes.
// Notification delivery is fire-and-forget and never alters the workflow.
func (e *Engine) record(ctx context.Context, cs *PaymentCase, state State, txHash, amount, detail, message string) {
	cs.State = state
	e.log.append(cs, state, txHash, amount, detail)

	e.logger.Info().
		Str("case_id", cs.ID).
		Str("state", string(state)).
		Str("amount_usdc", amount).
		Str("tx_hash", txHash).
		Msg("payment case transition")

	e.notifier.Notify(ctx, message)

	if state.Terminal() {
		metrics.CasesCompleted.WithLabelValues(string(state)).Inc()
	}
}

// settlementBalance reads the operating account's settlement balance with the
// shared retry utility; only transient query errors are retried.
func (e *Engine) settlementBalance(ctx context.Context) (balance *big.Int, err error) {
	err = errors.Retry(ctx, e.logger, "settlement_balance", nil, func() error {
		var qerr error
		balance, qerr = e.oracle.SettlementBalance(ctx, e.operator)
		return qerr
	})
	return balance, err
}

func attemptHash(attempt *chain.TransferAttempt) string {
	if !attempt.HasHandle() {
		return ""
	}
	return attempt.TxHash.Hex()
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func brokerFailureMessage(attempt *chain.TransferAttempt, err error) string {
	switch attempt.Outcome {
	case chain.OutcomeTimedOut:
		return fmt.Sprintf("⚠️ Broker transfer unconfirmed after timeout (tx %s): outcome unknown, manual inspection required; case halted", attempt.TxHash.Hex())
	case chain.OutcomeReverted:
		return fmt.Sprintf("❌ Broker transfer reverted on chain (tx %s)", attempt.TxHash.Hex())
	default:
		return fmt.Sprintf("❌ Broker transfer submission failed: %v", err)
	}
}

func swapFailureMessage(attempt *chain.TransferAttempt, err error) string {
	switch attempt.Outcome {
	case chain.OutcomeTimedOut:
		return fmt.Sprintf("⚠️ Swap unconfirmed after timeout (tx %s): outcome unknown, manual inspection required", attempt.TxHash.Hex())
	case chain.OutcomeReverted:
		return fmt.Sprintf("❌ Swap reverted on chain (tx %s)", attempt.TxHash.Hex())
	default:
		return fmt.Sprintf("❌ Swap submission failed: %v", err)
	}
}
