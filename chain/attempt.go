package chain

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Outcome classifies the terminal result of one transaction submission.
type Outcome string

const (
	// OutcomePending means the attempt has been created but not resolved.
	OutcomePending Outcome = "pending"

	// OutcomeConfirmed means the ledger reported successful execution.
	OutcomeConfirmed Outcome = "confirmed"

	// OutcomeReverted means the transaction was mined but execution failed.
	OutcomeReverted Outcome = "reverted"

	// OutcomeTimedOut means the confirmation wait exceeded its bound. The
	// transaction may still confirm or fail later out of band; callers must
	// treat this as unknown, not failed, and never resubmit automatically.
	OutcomeTimedOut Outcome = "timed_out"

	// OutcomeSubmissionFailed means the transaction was rejected before a
	// handle was obtained.
	OutcomeSubmissionFailed Outcome = "submission_failed"
)

// TransferAttempt records one submission of an asset-moving transaction.
// Created when a step begins, mutated only by the executor that owns it,
// terminal once Outcome leaves pending.
type TransferAttempt struct {
	Target       ethcommon.Address
	Amount       *big.Int
	EstimatedGas uint64
	GasLimit     uint64 // estimate with safety buffer applied, floored
	TxHash       ethcommon.Hash
	Outcome      Outcome
}

// HasHandle reports whether the submission got far enough to produce a
// transaction hash.
func (a *TransferAttempt) HasHandle() bool {
	return a.TxHash != (ethcommon.Hash{})
}

// bufferedGasLimit applies a percentage safety buffer to an estimate, flooring
// to an integer: estimate 50000 with a 20% buffer yields exactly 60000.
func bufferedGasLimit(estimate uint64, bufferPercent int64) uint64 {
	return estimate * uint64(100+bufferPercent) / 100
}
