// Package router resolves executable swap routes through an external
// liquidity-discovery service. The service is a black box: it searches
// available sources and returns the best path, or reports that none meets its
// liquidity and price constraints.
package router

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/karollnt/goldstory-backend/config"
	"github.com/karollnt/goldstory-backend/errors"
)

// ErrNoRoute is the expected, non-exceptional outcome when the routing service
// finds no viable path. The engine treats it as a terminal business result for
// the swap leg, never as a system fault.
var ErrNoRoute = fmt.Errorf("no viable swap route")

// Resolver queries the routing service for executable swap routes, applying
// the fixed slippage and deadline policy.
type Resolver struct {
	baseURL    string
	policy     config.Policy
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	retryCfg   *errors.RetryConfig
	logger     zerolog.Logger
	now        func() time.Time
}

// NewResolver creates a route resolver for the given routing service URL.
func NewResolver(baseURL string, policy config.Policy, logger zerolog.Logger) (*Resolver, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("router base URL is required")
	}

	log := logger.With().Str("component", "route_resolver").Logger()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "route_resolver",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A clean "no route" answer is the service working as intended; only
		// transport faults may open the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoRoute)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("routing service circuit state changed")
		},
	})

	return &Resolver{
		baseURL:    strings.TrimRight(baseURL, "/"),
		policy:     policy,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		breaker:    breaker,
		retryCfg:   errors.DefaultRetryConfig(),
		logger:     log,
		now:        time.Now,
	}, nil
}

// Resolve finds an executable route for the request. Transient transport
// failures are retried with backoff; a clean "no route" answer returns
// ErrNoRoute immediately.
func (r *Resolver) Resolve(ctx context.Context, req RouteRequest) (*Route, error) {
	if req.SellAmount == nil || req.SellAmount.Sign() <= 0 {
		return nil, errors.NewRouteError("sell amount must be positive", nil)
	}

	deadline := r.now().Add(time.Duration(r.policy.RouteDeadlineSeconds) * time.Second)

	var route *Route
	err := errors.Retry(ctx, r.logger, "resolve_route", r.retryCfg, func() error {
		res, err := r.breaker.Execute(func() (any, error) {
			return r.fetchRoute(ctx, req, deadline)
		})
		if err != nil {
			if errors.Is(err, ErrNoRoute) {
				return err
			}
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return errors.NewRouteError("routing service circuit open", err)
			}
			return err
		}
		route = res.(*Route)
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("to", route.To.Hex()).
		Str("sell_amount", req.SellAmount.String()).
		Uint64("estimated_gas", route.EstimatedGas).
		Time("deadline", route.Deadline).
		Msg("resolved swap route")

	return route, nil
}

func (r *Resolver) fetchRoute(ctx context.Context, req RouteRequest, deadline time.Time) (*Route, error) {
	q := url.Values{}
	q.Set("sellToken", req.SellToken.Hex())
	q.Set("buyToken", req.BuyToken.Hex())
	q.Set("sellAmount", req.SellAmount.String())
	q.Set("taker", req.Recipient.Hex())
	q.Set("slippageBps", strconv.FormatInt(r.policy.SlippageBps, 10))
	q.Set("deadline", strconv.FormatInt(deadline.Unix(), 10))

	endpoint := fmt.Sprintf("%s/route?%s", r.baseURL, q.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewRouteError("failed to build route request", err)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.NewRouteError("routing service request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.NewRouteError("failed to read routing service response", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return parseRoute(body)
	case http.StatusNotFound:
		return nil, ErrNoRoute
	case http.StatusBadRequest:
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Code == "NO_ROUTE" {
			return nil, ErrNoRoute
		}
		return nil, errors.NewRouteError(fmt.Sprintf("routing service rejected request: %s", string(body)), nil)
	default:
		return nil, errors.NewRouteError(fmt.Sprintf("routing service returned status %d", resp.StatusCode), nil)
	}
}

func parseRoute(body []byte) (*Route, error) {
	var raw routeResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.NewRouteError("failed to decode route response", err)
	}
	if raw.To == "" || raw.Data == "" {
		return nil, errors.NewRouteError("route response missing target or calldata", nil)
	}

	calldata, err := hex.DecodeString(strings.TrimPrefix(raw.Data, "0x"))
	if err != nil {
		return nil, errors.NewRouteError("route calldata is not valid hex", err)
	}

	value := new(big.Int)
	if raw.Value == "" {
		value.SetInt64(0)
	} else if _, ok := value.SetString(raw.Value, 10); !ok {
		return nil, errors.NewRouteError(fmt.Sprintf("invalid route value: %s", raw.Value), nil)
	}

	return &Route{
		To:           ethcommon.HexToAddress(raw.To),
		Calldata:     calldata,
		Value:        value,
		EstimatedGas: raw.EstimatedGas,
		Deadline:     time.Unix(raw.Deadline, 0),
	}, nil
}
