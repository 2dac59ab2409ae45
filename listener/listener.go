// Package listener watches the ledger for incoming settlement-asset transfers
// to the receiving account and hands each one to the distribution engine.
package listener

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/karollnt/goldstory-backend/db"
	"github.com/karollnt/goldstory-backend/engine"
	"github.com/karollnt/goldstory-backend/metrics"
	"github.com/karollnt/goldstory-backend/store"
)

// transferTopic is the keccak hash of the ERC20 Transfer event signature.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// maxBlockSpan caps the block range of one log query so a long outage does not
// produce an unbounded filter request.
const maxBlockSpan = 1000

// ChainReader is the ledger read surface the listener needs.
type ChainReader interface {
	LatestBlock(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// PaymentSink consumes detected payments. Submission must not block the
// polling loop.
type PaymentSink interface {
	Submit(ctx context.Context, payment engine.IncomingPayment)
}

// Listener polls the ledger for Transfer events of the settlement asset whose
// recipient is the receiving account. It keeps a durable block cursor so a
// restart resumes where it stopped instead of replaying or skipping history.
type Listener struct {
	reader   ChainReader
	sink     PaymentSink
	database *db.DB

	asset    ethcommon.Address
	receiver ethcommon.Address

	pollInterval time.Duration
	logger       zerolog.Logger
}

// New creates a listener for transfers of asset into receiver.
func New(reader ChainReader, sink PaymentSink, database *db.DB, asset, receiver ethcommon.Address, pollInterval time.Duration, logger zerolog.Logger) *Listener {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Listener{
		reader:       reader,
		sink:         sink,
		database:     database,
		asset:        asset,
		receiver:     receiver,
		pollInterval: pollInterval,
		logger:       logger.With().Str("component", "payment_listener").Logger(),
	}
}

// Start runs the polling loop until ctx is cancelled. Poll failures are logged
// and retried on the next tick; the cursor only advances past blocks whose
// logs were fetched successfully.
func (l *Listener) Start(ctx context.Context) error {
	cursor, err := l.loadCursor(ctx)
	if err != nil {
		return err
	}

	l.logger.Info().
		Str("asset", l.asset.Hex()).
		Str("receiver", l.receiver.Hex()).
		Uint64("from_block", cursor).
		Dur("poll_interval", l.pollInterval).
		Msg("payment listener started")

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("payment listener stopped")
			return ctx.Err()
		case <-ticker.C:
			next, err := l.poll(ctx, cursor)
			if err != nil {
				l.logger.Warn().Err(err).Uint64("cursor", cursor).Msg("poll failed, will retry")
				continue
			}
			cursor = next
		}
	}
}

// poll scans (cursor, latest] for matching transfers and returns the new
// cursor position.
func (l *Listener) poll(ctx context.Context, cursor uint64) (uint64, error) {
	latest, err := l.reader.LatestBlock(ctx)
	if err != nil {
		return cursor, err
	}
	if latest <= cursor {
		return cursor, nil
	}

	from := cursor + 1
	to := latest
	if to-from >= maxBlockSpan {
		to = from + maxBlockSpan - 1
	}

	logs, err := l.reader.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []ethcommon.Address{l.asset},
		Topics: [][]ethcommon.Hash{
			{transferTopic},
			nil,
			{addressTopic(l.receiver)},
		},
	})
	if err != nil {
		return cursor, err
	}

	for i := range logs {
		l.handleLog(ctx, &logs[i])
	}

	if err := l.saveCursor(to); err != nil {
		l.logger.Error().Err(err).Uint64("block", to).Msg("failed to persist listener cursor")
	}
	return to, nil
}

// handleLog converts one Transfer log into an incoming payment.
func (l *Listener) handleLog(ctx context.Context, log *types.Log) {
	if log.Removed || len(log.Topics) < 3 {
		return
	}

	payer := ethcommon.BytesToAddress(log.Topics[1].Bytes())
	amount := new(big.Int).SetBytes(log.Data)
	if amount.Sign() <= 0 {
		l.logger.Debug().Str("tx_hash", log.TxHash.Hex()).Msg("ignoring zero-value transfer")
		return
	}

	l.logger.Info().
		Str("payer", payer.Hex()).
		Str("amount_raw", amount.String()).
		Uint64("block", log.BlockNumber).
		Str("tx_hash", log.TxHash.Hex()).
		Msg("incoming payment detected")

	metrics.PaymentsObserved.Inc()
	l.sink.Submit(ctx, engine.IncomingPayment{
		Payer:       payer,
		AmountRaw:   amount,
		BlockNumber: log.BlockNumber,
		ObservedAt:  time.Now().UTC(),
	})
}

// loadCursor returns the persisted cursor for the watched asset, seeding it at
// the current chain head when none exists. Historic transfers from before the
// first start are deliberately not replayed. A cursor read failure is fatal:
// reseeding at the head would silently skip every block since the last run.
func (l *Listener) loadCursor(ctx context.Context) (uint64, error) {
	if l.database != nil {
		var row store.ListenerCursor
		err := l.database.Client().Where("asset = ?", l.asset.Hex()).First(&row).Error
		switch {
		case err == nil:
			return row.LastBlock, nil
		case !stderrors.Is(err, gorm.ErrRecordNotFound):
			return 0, fmt.Errorf("failed to load listener cursor: %w", err)
		}
	}

	latest, err := l.reader.LatestBlock(ctx)
	if err != nil {
		return 0, err
	}
	if err := l.saveCursor(latest); err != nil {
		l.logger.Error().Err(err).Msg("failed to seed listener cursor")
	}
	return latest, nil
}

func (l *Listener) saveCursor(block uint64) error {
	if l.database == nil {
		return nil
	}
	var row store.ListenerCursor
	err := l.database.Client().Where("asset = ?", l.asset.Hex()).First(&row).Error
	if err != nil {
		row = store.ListenerCursor{Asset: l.asset.Hex(), LastBlock: block}
		return l.database.Client().Create(&row).Error
	}
	return l.database.Client().Model(&row).Update("last_block", block).Error
}

// addressTopic left-pads an address into a 32-byte log topic.
func addressTopic(addr ethcommon.Address) ethcommon.Hash {
	return ethcommon.BytesToHash(ethcommon.LeftPadBytes(addr.Bytes(), 32))
}
