package chain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/karollnt/goldstory-backend/config"
	"github.com/karollnt/goldstory-backend/errors"
)

// SubmitListener is told about a transaction the moment it is broadcast,
// before its outcome is known. Operators must see in-flight risk.
type SubmitListener func(attempt *TransferAttempt)

// TransferExecutor submits single settlement-asset transfers and resolves
// their outcome.
type TransferExecutor struct {
	rpc             *RPCClient
	oracle          BalanceReader
	submitter       *Submitter
	settlementAsset ethcommon.Address
	policy          config.Policy
	logger          zerolog.Logger
}

// NewTransferExecutor creates a transfer executor.
func NewTransferExecutor(
	rpc *RPCClient,
	oracle BalanceReader,
	submitter *Submitter,
	settlementAsset ethcommon.Address,
	policy config.Policy,
	logger zerolog.Logger,
) *TransferExecutor {
	return &TransferExecutor{
		rpc:             rpc,
		oracle:          oracle,
		submitter:       submitter,
		settlementAsset: settlementAsset,
		policy:          policy,
		logger:          logger.With().Str("component", "transfer_executor").Logger(),
	}
}

// Transfer moves amount raw settlement-asset units to the target account. The
// returned attempt always describes what happened; err is non-nil whenever the
// outcome is not Confirmed. A TimedOut attempt is unknown, not failed: it must
// not be retried automatically.
func (te *TransferExecutor) Transfer(ctx context.Context, target ethcommon.Address, amount *big.Int, onSubmit SubmitListener) (*TransferAttempt, error) {
	attempt := &TransferAttempt{
		Target:  target,
		Amount:  new(big.Int).Set(amount),
		Outcome: OutcomePending,
	}

	// Balance check immediately before submission, never cached from an
	// earlier workflow step: balances move between legs.
	balance, err := te.oracle.SettlementBalance(ctx, te.submitter.From())
	if err != nil {
		attempt.Outcome = OutcomeSubmissionFailed
		return attempt, err
	}
	if balance.Cmp(amount) < 0 {
		attempt.Outcome = OutcomeSubmissionFailed
		return attempt, errors.NewBalanceError("insufficient settlement balance", nil).
			WithContext("balance", balance.String()).
			WithContext("required", amount.String())
	}

	data, err := packTransfer(target, amount)
	if err != nil {
		attempt.Outcome = OutcomeSubmissionFailed
		return attempt, errors.NewInternalError("failed to encode transfer", err)
	}

	// Estimation failure usually means the call would revert; never submit a
	// transaction whose gas cannot be estimated.
	asset := te.settlementAsset
	from := te.submitter.From()
	estimate, err := te.rpc.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &asset,
		Data: data,
	})
	if err != nil {
		attempt.Outcome = OutcomeSubmissionFailed
		return attempt, errors.NewEstimationError("gas estimation failed", err)
	}

	attempt.EstimatedGas = estimate
	attempt.GasLimit = bufferedGasLimit(estimate, te.policy.GasBufferPercent)

	txHash, err := te.submitter.Submit(ctx, asset, nil, attempt.GasLimit, data)
	if err != nil {
		attempt.Outcome = OutcomeSubmissionFailed
		return attempt, te.classifySubmissionError(ctx, err)
	}
	attempt.TxHash = txHash

	if onSubmit != nil {
		onSubmit(attempt)
	}

	timeout := time.Duration(te.policy.ConfirmTimeoutSeconds) * time.Second
	attempt.Outcome = waitForReceipt(ctx, te.rpc, txHash, timeout, te.logger)

	switch attempt.Outcome {
	case OutcomeConfirmed:
		te.logger.Info().
			Str("tx_hash", txHash.Hex()).
			Str("target", target.Hex()).
			Str("amount_raw", amount.String()).
			Msg("transfer confirmed")
		return attempt, nil
	case OutcomeReverted:
		return attempt, errors.NewSubmissionError("transfer reverted on chain", nil).
			WithContext("tx_hash", txHash.Hex())
	default:
		return attempt, errors.NewTimeoutError("transfer confirmation timed out").
			WithContext("tx_hash", txHash.Hex())
	}
}

// classifySubmissionError special-cases fee-asset exhaustion: when the ledger
// rejects a transaction because the operating account cannot pay for gas, the
// diagnostic carries the current fee-asset balance for operator visibility.
func (te *TransferExecutor) classifySubmissionError(ctx context.Context, err error) error {
	perr := errors.NewSubmissionError("transaction submission failed", err)
	if isFeeExhaustion(err) {
		if gasBalance, balErr := te.oracle.GasBalance(ctx, te.submitter.From()); balErr == nil {
			perr.WithContext("gas_balance_wei", gasBalance.String())
		}
		perr.WithContext("cause", "insufficient funds for gas")
	}
	return perr
}

func isFeeExhaustion(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "insufficient funds")
}
