package chain

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

// receiptPollInterval is how often a confirmation wait re-queries the ledger.
const receiptPollInterval = 3 * time.Second

// waitForReceipt polls for the transaction's receipt until it appears or the
// timeout elapses. A timeout yields OutcomeTimedOut: the transaction may still
// land, the caller only knows the outcome is unknown. Transient receipt-query
// failures are tolerated until the deadline; only the ledger's answer resolves
// the attempt.
func waitForReceipt(ctx context.Context, rpc *RPCClient, txHash ethcommon.Hash, timeout time.Duration, logger zerolog.Logger) Outcome {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Warn().Str("tx_hash", txHash.Hex()).Msg("confirmation wait cancelled")
			return OutcomeTimedOut
		case <-deadline.C:
			logger.Warn().
				Str("tx_hash", txHash.Hex()).
				Dur("timeout", timeout).
				Msg("confirmation wait timed out, outcome unknown")
			return OutcomeTimedOut
		case <-ticker.C:
			receipt, err := rpc.TransactionReceipt(ctx, txHash)
			if err != nil {
				if !isNotFound(err) {
					logger.Warn().Err(err).Str("tx_hash", txHash.Hex()).Msg("receipt query failed, will retry")
				}
				continue
			}
			return classifyReceipt(receipt)
		}
	}
}

func classifyReceipt(receipt *types.Receipt) Outcome {
	if receipt.Status == types.ReceiptStatusSuccessful {
		return OutcomeConfirmed
	}
	return OutcomeReverted
}

func isNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound)
}
