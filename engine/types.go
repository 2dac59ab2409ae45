package engine

import (
	"context"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/karollnt/goldstory-backend/chain"
	"github.com/karollnt/goldstory-backend/router"
)

// IncomingPayment identifies one detected transfer to the receiving account.
// Immutable once constructed; consumed exactly once by the engine.
type IncomingPayment struct {
	Payer       ethcommon.Address
	AmountRaw   *big.Int
	BlockNumber uint64
	ObservedAt  time.Time
}

// PaymentCase binds one incoming payment to its distribution plan and the
// ordered history of on-chain attempts. It exists only for the duration of
// processing; the durable trace lives in the case log.
type PaymentCase struct {
	ID       string
	Payment  IncomingPayment
	Plan     DistributionPlan
	State    State
	Attempts []*chain.TransferAttempt
	Route    *router.Route
}

// Oracle is the balance read port the engine uses for its submission guards.
type Oracle interface {
	SettlementBalance(ctx context.Context, account ethcommon.Address) (*big.Int, error)
}

// TransferExecutor submits a single settlement-asset transfer.
type TransferExecutor interface {
	Transfer(ctx context.Context, target ethcommon.Address, amount *big.Int, onSubmit chain.SubmitListener) (*chain.TransferAttempt, error)
}

// SwapExecutor submits a resolved swap route.
type SwapExecutor interface {
	Execute(ctx context.Context, route *router.Route, onSubmit chain.SubmitListener) (*chain.TransferAttempt, error)
}

// RouteResolver finds an executable swap route, returning router.ErrNoRoute
// when none exists.
type RouteResolver interface {
	Resolve(ctx context.Context, req router.RouteRequest) (*router.Route, error)
}
