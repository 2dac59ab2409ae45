package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/karollnt/goldstory-backend/errors"
)

// BalanceReader is the balance read surface the executors guard submissions
// with.
type BalanceReader interface {
	SettlementBalance(ctx context.Context, account ethcommon.Address) (*big.Int, error)
	GasBalance(ctx context.Context, account ethcommon.Address) (*big.Int, error)
}

// Oracle reads current holdings of the settlement asset and the native
// gas-paying asset for an account. Read-only and uncached: balances move as a
// direct result of this system's own transfers, so every check hits the ledger.
type Oracle struct {
	rpc             *RPCClient
	settlementAsset ethcommon.Address
	logger          zerolog.Logger
}

// NewOracle creates a balance oracle for the given settlement asset contract.
func NewOracle(rpc *RPCClient, settlementAsset ethcommon.Address, logger zerolog.Logger) *Oracle {
	return &Oracle{
		rpc:             rpc,
		settlementAsset: settlementAsset,
		logger:          logger.With().Str("component", "balance_oracle").Logger(),
	}
}

// SettlementBalance returns the account's settlement-asset balance in raw
// units, reflecting the most recent confirmed ledger state.
func (o *Oracle) SettlementBalance(ctx context.Context, account ethcommon.Address) (*big.Int, error) {
	data, err := packBalanceOf(account)
	if err != nil {
		return nil, errors.NewInternalError("failed to encode balance query", err)
	}

	out, err := o.rpc.CallContract(ctx, ethereum.CallMsg{
		To:   &o.settlementAsset,
		Data: data,
	})
	if err != nil {
		return nil, errors.NewQueryError("settlement balance query failed", err)
	}

	balance, err := unpackBalance(out)
	if err != nil {
		return nil, errors.NewQueryError("settlement balance response malformed", err)
	}
	return balance, nil
}

// GasBalance returns the account's native-asset balance in wei.
func (o *Oracle) GasBalance(ctx context.Context, account ethcommon.Address) (*big.Int, error) {
	balance, err := o.rpc.NativeBalance(ctx, account)
	if err != nil {
		return nil, errors.NewQueryError("gas balance query failed", err)
	}
	return balance, nil
}
