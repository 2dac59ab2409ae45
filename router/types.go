package router

import (
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// RouteRequest describes the swap the resolver should find a path for.
type RouteRequest struct {
	SellToken  ethcommon.Address // input asset
	BuyToken   ethcommon.Address // output asset
	SellAmount *big.Int          // input amount in the sell token's smallest unit
	Recipient  ethcommon.Address // receiver of the output asset
}

// Route is an executable swap path returned by the routing service. It is
// consumed at most once; a route whose Deadline has passed must not be
// submitted.
type Route struct {
	To           ethcommon.Address // execution target contract
	Calldata     []byte            // opaque execution payload
	Value        *big.Int          // native-asset value to attach
	EstimatedGas uint64            // advisory estimate from the router
	Deadline     time.Time         // absolute validity deadline
}

// Stale reports whether the route's validity deadline has passed.
func (r *Route) Stale(now time.Time) bool {
	return now.After(r.Deadline)
}

// routeResponse is the wire format of the routing service.
type routeResponse struct {
	To           string `json:"to"`
	Data         string `json:"data"`
	Value        string `json:"value"`
	EstimatedGas uint64 `json:"estimatedGas"`
	Deadline     int64  `json:"deadline"` // unix seconds
}

// errorResponse is the routing service's error envelope.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
