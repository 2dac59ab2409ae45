package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/karollnt/goldstory-backend/config"
	"github.com/karollnt/goldstory-backend/errors"
	"github.com/karollnt/goldstory-backend/router"
)

// SwapExecutor submits resolved swap routes as transactions. A swap failing
// mid-flight because the account ran out of fee asset is strictly worse than
// refusing to start, so the gas reserve is re-checked before every submission.
type SwapExecutor struct {
	rpc       *RPCClient
	oracle    BalanceReader
	submitter *Submitter
	policy    config.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewSwapExecutor creates a swap executor.
func NewSwapExecutor(
	rpc *RPCClient,
	oracle BalanceReader,
	submitter *Submitter,
	policy config.Policy,
	logger zerolog.Logger,
) *SwapExecutor {
	return &SwapExecutor{
		rpc:       rpc,
		oracle:    oracle,
		submitter: submitter,
		policy:    policy,
		logger:    logger.With().Str("component", "swap_executor").Logger(),
		now:       time.Now,
	}
}

// minReserveWei converts the policy's human-scale native reserve to wei.
func (se *SwapExecutor) minReserveWei() *big.Int {
	return decimal.NewFromFloat(se.policy.MinGasReserve).Shift(18).BigInt()
}

// Execute submits the route and resolves the attempt. The route's own gas
// estimate is advisory; the fixed policy ceiling bounds the worst case.
func (se *SwapExecutor) Execute(ctx context.Context, route *router.Route, onSubmit SubmitListener) (*TransferAttempt, error) {
	attempt := &TransferAttempt{
		Target:       route.To,
		Amount:       new(big.Int).Set(route.Value),
		EstimatedGas: route.EstimatedGas,
		GasLimit:     se.policy.SwapGasCeiling,
		Outcome:      OutcomePending,
	}

	if route.Stale(se.now()) {
		attempt.Outcome = OutcomeSubmissionFailed
		return attempt, errors.NewSubmissionError("swap route is past its validity deadline", nil).
			WithContext("deadline", route.Deadline.String())
	}

	gasBalance, err := se.oracle.GasBalance(ctx, se.submitter.From())
	if err != nil {
		attempt.Outcome = OutcomeSubmissionFailed
		return attempt, err
	}
	reserve := se.minReserveWei()
	if gasBalance.Cmp(reserve) < 0 {
		attempt.Outcome = OutcomeSubmissionFailed
		return attempt, errors.NewBalanceError("gas balance below minimum operating reserve", nil).
			WithContext("gas_balance_wei", gasBalance.String()).
			WithContext("reserve_wei", reserve.String())
	}

	txHash, err := se.submitter.Submit(ctx, route.To, route.Value, attempt.GasLimit, route.Calldata)
	if err != nil {
		attempt.Outcome = OutcomeSubmissionFailed
		return attempt, errors.NewSubmissionError("swap submission failed", err)
	}
	attempt.TxHash = txHash

	if onSubmit != nil {
		onSubmit(attempt)
	}

	timeout := time.Duration(se.policy.ConfirmTimeoutSeconds) * time.Second
	attempt.Outcome = waitForReceipt(ctx, se.rpc, txHash, timeout, se.logger)

	switch attempt.Outcome {
	case OutcomeConfirmed:
		se.logger.Info().
			Str("tx_hash", txHash.Hex()).
			Str("target", route.To.Hex()).
			Msg("swap confirmed")
		return attempt, nil
	case OutcomeReverted:
		return attempt, errors.NewSubmissionError("swap reverted on chain", nil).
			WithContext("tx_hash", txHash.Hex())
	default:
		return attempt, errors.NewTimeoutError("swap confirmation timed out").
			WithContext("tx_hash", txHash.Hex())
	}
}
