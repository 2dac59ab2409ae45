// Package reconciler resolves submitted transactions whose outcome the engine
// never learned, typically because the confirmation wait timed out. It only
// re-queries the ledger and records what it finds; nothing is ever resubmitted.
package reconciler

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/karollnt/goldstory-backend/db"
	"github.com/karollnt/goldstory-backend/metrics"
	"github.com/karollnt/goldstory-backend/notify"
	"github.com/karollnt/goldstory-backend/store"
)

// ReceiptReader is the ledger read surface the reconciler needs.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error)
}

// Reconciler periodically sweeps the pending-transaction table and settles
// rows the ledger has since answered for.
type Reconciler struct {
	reader   ReceiptReader
	database *db.DB
	notifier notify.Notifier

	interval time.Duration
	logger   zerolog.Logger
}

// New creates a reconciler sweeping at the given interval.
func New(reader ReceiptReader, database *db.DB, notifier notify.Notifier, interval time.Duration, logger zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Reconciler{
		reader:   reader,
		database: database,
		notifier: notifier,
		interval: interval,
		logger:   logger.With().Str("component", "reconciler").Logger(),
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) error {
	if r.database == nil {
		r.logger.Warn().Msg("no database configured, reconciler disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	r.logger.Info().Dur("interval", r.interval).Msg("reconciler started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep resolves every open row the ledger can now answer for.
func (r *Reconciler) sweep(ctx context.Context) {
	var open []store.PendingTransaction
	err := r.database.Client().
		Where("status IN ?", []string{store.TxStatusPending, store.TxStatusTimedOut}).
		Find(&open).Error
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to load open transactions")
		return
	}

	for i := range open {
		r.resolve(ctx, &open[i])
	}
}

func (r *Reconciler) resolve(ctx context.Context, row *store.PendingTransaction) {
	receipt, err := r.reader.TransactionReceipt(ctx, ethcommon.HexToHash(row.TxHash))
	if err != nil {
		if !stderrors.Is(err, ethereum.NotFound) {
			r.logger.Warn().Err(err).Str("tx_hash", row.TxHash).Msg("receipt query failed")
		}
		return
	}

	status := store.TxStatusReverted
	if receipt.Status == types.ReceiptStatusSuccessful {
		status = store.TxStatusConfirmed
	}

	err = r.database.Client().
		Model(&store.PendingTransaction{}).
		Where("tx_hash = ?", row.TxHash).
		Update("status", status).Error
	if err != nil {
		r.logger.Error().Err(err).Str("tx_hash", row.TxHash).Msg("failed to record resolution")
		return
	}

	r.logger.Info().
		Str("tx_hash", row.TxHash).
		Str("case_id", row.CaseID).
		Str("leg", row.Leg).
		Str("status", status).
		Uint64("block", receipt.BlockNumber.Uint64()).
		Msg("transaction resolved out of band")

	metrics.ReconcilerResolutions.WithLabelValues(status).Inc()
	r.notifier.Notify(ctx, fmt.Sprintf("🔎 Late resolution: %s leg of case %s %s on chain (tx %s)",
		row.Leg, row.CaseID, status, row.TxHash))
}
