package engine

import (
	"github.com/rs/zerolog"

	"github.com/karollnt/goldstory-backend/chain"
	"github.com/karollnt/goldstory-backend/db"
	"github.com/karollnt/goldstory-backend/store"
)

// caseLog appends state transitions and tracked transactions to the durable
// case log. Write failures are logged, never propagated: losing an audit row
// must not alter the money-moving workflow.
type caseLog struct {
	database *db.DB
	logger   zerolog.Logger
}

func newCaseLog(database *db.DB, logger zerolog.Logger) *caseLog {
	return &caseLog{
		database: database,
		logger:   logger.With().Str("component", "case_log").Logger(),
	}
}

func (cl *caseLog) append(cs *PaymentCase, state State, txHash, amount, detail string) {
	if cl.database == nil {
		return
	}
	event := &store.CaseEvent{
		CaseID:      cs.ID,
		Payer:       cs.Payment.Payer.Hex(),
		State:       string(state),
		AmountUSDC:  amount,
		TxHash:      txHash,
		BlockNumber: cs.Payment.BlockNumber,
		Detail:      detail,
	}
	if err := cl.database.Client().Create(event).Error; err != nil {
		cl.logger.Error().Err(err).Str("case_id", cs.ID).Str("state", string(state)).Msg("failed to append case event")
	}
}

// trackSubmission records a broadcast transaction whose outcome is unknown.
func (cl *caseLog) trackSubmission(cs *PaymentCase, attempt *chain.TransferAttempt, leg string) {
	if cl.database == nil || !attempt.HasHandle() {
		return
	}
	record := &store.PendingTransaction{
		TxHash:   attempt.TxHash.Hex(),
		CaseID:   cs.ID,
		Leg:      leg,
		Status:   store.TxStatusPending,
		GasLimit: attempt.GasLimit,
	}
	if err := cl.database.Client().Create(record).Error; err != nil {
		cl.logger.Error().Err(err).Str("tx_hash", record.TxHash).Msg("failed to track submitted transaction")
	}
}

// resolveSubmission updates a tracked transaction once its outcome is known.
// TimedOut stays open: the reconciler revisits it until the ledger answers.
func (cl *caseLog) resolveSubmission(attempt *chain.TransferAttempt) {
	if cl.database == nil || !attempt.HasHandle() {
		return
	}

	var status string
	switch attempt.Outcome {
	case chain.OutcomeConfirmed:
		status = store.TxStatusConfirmed
	case chain.OutcomeReverted:
		status = store.TxStatusReverted
	case chain.OutcomeTimedOut:
		status = store.TxStatusTimedOut
	default:
		return
	}

	err := cl.database.Client().
		Model(&store.PendingTransaction{}).
		Where("tx_hash = ?", attempt.TxHash.Hex()).
		Update("status", status).Error
	if err != nil {
		cl.logger.Error().Err(err).Str("tx_hash", attempt.TxHash.Hex()).Msg("failed to resolve tracked transaction")
	}
}
