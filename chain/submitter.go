package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

// Submitter signs and broadcasts transactions from the operating account. The
// account's nonce sequence is a shared resource across concurrently processing
// payment cases, so {nonce fetch, sign, send} runs under one lock. Confirmation
// waiting happens outside the lock.
type Submitter struct {
	rpc     *RPCClient
	key     *ecdsa.PrivateKey
	from    ethcommon.Address
	chainID *big.Int
	signer  types.Signer
	mu      sync.Mutex
	logger  zerolog.Logger
}

// NewSubmitter creates a submitter for the operating account's private key.
func NewSubmitter(rpc *RPCClient, privateKeyHex string, chainID int64, logger zerolog.Logger) (*Submitter, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid operator private key: %w", err)
	}

	id := big.NewInt(chainID)
	return &Submitter{
		rpc:     rpc,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: id,
		signer:  types.LatestSignerForChainID(id),
		logger:  logger.With().Str("component", "tx_submitter").Logger(),
	}, nil
}

// From returns the operating account address.
func (s *Submitter) From() ethcommon.Address {
	return s.from
}

// Submit signs and broadcasts a transaction, returning its hash. The lock is
// held only across nonce selection, signing and broadcast so concurrent cases
// serialize submission without serializing confirmation waits.
func (s *Submitter) Submit(ctx context.Context, to ethcommon.Address, value *big.Int, gasLimit uint64, data []byte) (ethcommon.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.rpc.PendingNonce(ctx, s.from)
	if err != nil {
		return ethcommon.Hash{}, fmt.Errorf("failed to fetch pending nonce: %w", err)
	}

	gasPrice, err := s.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return ethcommon.Hash{}, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	if value == nil {
		value = big.NewInt(0)
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, s.signer, s.key)
	if err != nil {
		return ethcommon.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.rpc.SendTransaction(ctx, signedTx); err != nil {
		return ethcommon.Hash{}, fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	hash := signedTx.Hash()
	s.logger.Info().
		Str("tx_hash", hash.Hex()).
		Str("to", to.Hex()).
		Uint64("nonce", nonce).
		Uint64("gas_limit", gasLimit).
		Str("gas_price_wei", gasPrice.String()).
		Msg("transaction broadcast")

	return hash, nil
}
